package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var staticFS embed.FS

// Static holds the page assets served under /static
var Static fs.FS

func init() {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	Static = sub
}

