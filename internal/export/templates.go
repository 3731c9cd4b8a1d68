package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"

	"pdfpro/api/internal/workspace"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html").
		Funcs(template.FuncMap{"lower": strings.ToLower}).
		ParseFS(templateFS, "templates/report.html"),
)

// TemplateData holds data for report template rendering
type TemplateData struct {
	Title       string
	Author      string
	GeneratedAt string
	UpdatedAt   string
	CanvasURL   template.URL
	Layers      []TemplateLayer
	NoteGroups  []workspace.NoteGroup
	Tasks       []workspace.TaskMemory
}

// TemplateLayer summarizes one layer for the report
type TemplateLayer struct {
	Name     string
	Elements int
	Visible  bool
	Locked   bool
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
