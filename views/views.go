// Package views holds the embedded page templates.
package views

import (
	"embed"
	"net/http"

	"github.com/gofiber/template/html/v2"
)

//go:embed *.html
var files embed.FS

// Engine returns the template engine over the embedded views, so pages
// render regardless of the process working directory.
func Engine() *html.Engine {
	return html.NewFileSystem(http.FS(files), ".html")
}
