package ui

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// handleHelp renders the embedded usage guide as HTML inside the page shell.
func (s *Server) handleHelp(c *gin.Context) {
	src, err := embeddedFiles.ReadFile("docs/usage.md")
	if err != nil {
		s.logger.Error("[Help] Failed to read usage doc: %v", err)
		c.String(http.StatusInternalServerError, "help unavailable")
		return
	}

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(p.Parse(markdown.NormalizeNewlines(src)), renderer)

	c.HTML(http.StatusOK, "help.html", gin.H{
		"Content": template.HTML(rendered),
	})
}
