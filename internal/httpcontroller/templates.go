package httpcontroller

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

//go:embed views/*.html
var viewsFS embed.FS

// timeLayout is used for every time shown on the status page.
const timeLayout = "2006-01-02 15:04:05 MST"

// TemplateRenderer is a custom HTML template renderer for Echo framework.
type TemplateRenderer struct {
	templates *template.Template
	// observe, when set, receives the render duration of each template.
	observe func(name string, d time.Duration, err error)
}

func newTemplateRenderer() (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(templateFunctions()).ParseFS(viewsFS, "views/*.html")
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{templates: tmpl}, nil
}

// Render renders a template with the given data. Output is buffered so that
// a failing template never sends a partial page.
func (t *TemplateRenderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	start := time.Now()
	var buf bytes.Buffer
	err := t.templates.ExecuteTemplate(&buf, name, data)
	if t.observe != nil {
		t.observe(name, time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("executing template %s: %w", name, err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// templateFunctions returns the functions available to templates.
func templateFunctions() template.FuncMap {
	return template.FuncMap{
		"formatTime":   formatTime,
		"formatLevels": formatLevels,
		"formatBytes":  formatBytes,
		"formatCoord":  formatCoord,
		"yesNo":        yesNo,
		"plural":       plural,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "None"
	}
	return t.Format(timeLayout)
}

// formatLevels renders dBFS values with two decimals, or "-" when there are
// none yet.
func formatLevels(levels []float64) string {
	if len(levels) == 0 {
		return "-"
	}
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprintf("%.2f", l)
	}
	return strings.Join(parts, ", ")
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatCoord(v *float64) string {
	if v == nil {
		return "None"
	}
	return fmt.Sprintf("%g", *v)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// plural returns "s" unless n is one.
func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
