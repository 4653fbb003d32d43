package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"casefinder-web/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const pageTitle = "Similar Case Finder"

// Field is one labelled value of a display unit
type Field struct {
	Label string
	Value string
}

// DisplayUnit is one rendered case: a table row or a card
type DisplayUnit struct {
	Number int
	Fields []Field
}

// DisplayStrategy decides how cases and errors are presented
type DisplayStrategy interface {
	// Name identifies the variant in configuration
	Name() string
	// ResultsTemplate is the template rendering the display units
	ResultsTemplate() string
	// Labels are the six field labels in display order
	Labels() []string
	// AlertErrors shows error messages as a blocking alert instead of inline text
	AlertErrors() bool
}

var fieldLabels = []string{
	"Crime",
	"Year",
	"Place",
	"Accused Count",
	"Similarity Score",
	"Similarities Found",
}

// TableStrategy renders one table row per case with inline errors
type TableStrategy struct{}

func (TableStrategy) Name() string            { return "table" }
func (TableStrategy) ResultsTemplate() string { return "results_table" }
func (TableStrategy) Labels() []string        { return fieldLabels }
func (TableStrategy) AlertErrors() bool       { return false }

// CardStrategy renders one card per case with alert errors
type CardStrategy struct{}

func (CardStrategy) Name() string            { return "cards" }
func (CardStrategy) ResultsTemplate() string { return "results_cards" }
func (CardStrategy) AlertErrors() bool       { return true }

func (CardStrategy) Labels() []string {
	labels := append([]string(nil), fieldLabels...)
	labels[len(labels)-1] = "Reason for Similarity"
	return labels
}

// StrategyByName returns the display strategy for a DISPLAY_VARIANT value
func StrategyByName(name string) (DisplayStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "table":
		return TableStrategy{}, nil
	case "cards", "card":
		return CardStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown display variant: %s", name)
	}
}

// DisplayUnits turns cases into labelled units, keeping the received order
// and the fixed field order
func DisplayUnits(cases []models.CaseRecord, labels []string) []DisplayUnit {
	if len(labels) != len(fieldLabels) {
		labels = fieldLabels
	}

	units := make([]DisplayUnit, 0, len(cases))
	for i, c := range cases {
		values := []string{
			c.Crime,
			c.Year.String(),
			c.Place,
			c.AccusedCount.String(),
			c.SimilarityScore.String(),
			c.SimilaritiesFound,
		}
		fields := make([]Field, len(values))
		for j, v := range values {
			fields[j] = Field{Label: labels[j], Value: v}
		}
		units = append(units, DisplayUnit{Number: i + 1, Fields: fields})
	}
	return units
}

// resultsData feeds the results templates
type resultsData struct {
	Units  []DisplayUnit
	Labels []string
	Limit  int
}

// PageData feeds the page template
type PageData struct {
	Title       string
	View        models.WidgetView
	AlertErrors bool
	Results     template.HTML
}

// Renderer renders the widget page. Every value goes through html/template,
// so markup in case fields is shown as text.
type Renderer struct {
	templates *template.Template
	strategy  DisplayStrategy
}

// NewRenderer parses the embedded templates for the given strategy
func NewRenderer(strategy DisplayStrategy) (*Renderer, error) {
	if strategy == nil {
		strategy = TableStrategy{}
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if tmpl.Lookup(strategy.ResultsTemplate()) == nil {
		return nil, fmt.Errorf("template %q not found", strategy.ResultsTemplate())
	}

	return &Renderer{templates: tmpl, strategy: strategy}, nil
}

// Strategy returns the active display strategy
func (r *Renderer) Strategy() DisplayStrategy {
	return r.strategy
}

// RenderResults writes only the results region for a session
func (r *Renderer) RenderResults(w io.Writer, session *models.Session) error {
	data := resultsData{
		Labels: r.strategy.Labels(),
		Limit:  session.Pagination.Limit,
	}
	if session.View.Searched && len(session.View.Cases) > 0 {
		data.Units = DisplayUnits(session.View.Cases, data.Labels)
	}
	return r.templates.ExecuteTemplate(w, r.strategy.ResultsTemplate(), data)
}

// RenderPage writes the full widget page for a session
func (r *Renderer) RenderPage(w io.Writer, session *models.Session) error {
	var results bytes.Buffer
	if err := r.RenderResults(&results, session); err != nil {
		return fmt.Errorf("failed to render results: %w", err)
	}

	data := PageData{
		Title:       pageTitle,
		View:        session.View,
		AlertErrors: r.strategy.AlertErrors(),
		// Produced by html/template above, already escaped.
		Results: template.HTML(results.String()),
	}
	return r.templates.ExecuteTemplate(w, "page", data)
}
