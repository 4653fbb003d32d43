package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FieldValue holds a case field the backend may send either as a JSON string
// or as a JSON number. The text is kept exactly as received.
type FieldValue struct {
	Text    string
	Numeric bool
}

// String returns the value as it appeared in the response
func (v FieldValue) String() string {
	return v.Text
}

// UnmarshalJSON implements json.Unmarshaler
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = FieldValue{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FieldValue{Text: s}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("field value must be a string or number: %w", err)
	}
	*v = FieldValue{Text: n.String(), Numeric: true}
	return nil
}

// MarshalJSON implements json.Marshaler
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.Numeric && v.Text != "" {
		return []byte(v.Text), nil
	}
	return json.Marshal(v.Text)
}

// CaseRecord is one matched historical case returned by the similarity backend
type CaseRecord struct {
	Crime             string     `json:"Crime"`
	Year              FieldValue `json:"Year"`
	Place             string     `json:"Place"`
	AccusedCount      FieldValue `json:"Accused Count"`
	SimilarityScore   FieldValue `json:"Similarity Score"`
	SimilaritiesFound string     `json:"Similarities Found"`
}

// SimilarityResponse is the JSON body returned by the backend upload endpoint.
// Either Error is set or SimilarCases/TotalFound are.
type SimilarityResponse struct {
	Error        string       `json:"error,omitempty"`
	SimilarCases []CaseRecord `json:"similar_cases"`
	TotalFound   int          `json:"total_found"`
}

// HasError reports whether the backend answered with the failure shape
func (r *SimilarityResponse) HasError() bool {
	return r.Error != ""
}

// Validate checks the success shape. A payload with no error and no
// similar_cases array is malformed.
func (r *SimilarityResponse) Validate() error {
	if r.HasError() {
		return nil
	}
	if r.SimilarCases == nil {
		return fmt.Errorf("response has neither error nor similar_cases")
	}
	return nil
}
