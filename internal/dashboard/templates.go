package dashboard

import (
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pricedash/pricedash/internal/apiclient"
	"github.com/pricedash/pricedash/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

func loadTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"cell":  cell,
		"mask":  mask,
		"comma": func(n int) string { return humanize.Comma(int64(n)) },
		"ago": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return fmt.Sprintf("%s (%s)", humanize.Time(*t), t.Local().Format(time.RFC1123))
		},
	}

	tmpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}

// pageData is shared by every template
type pageData struct {
	Title string
	Path  string
	Flash string
	Error string

	Auth   *session.Authenticated
	Prompt *session.Prompt

	BaseURL  string
	Visits   int
	Settings requestSettings

	Query     listForm
	Orders    []string
	ShowMacro bool
	Table     *table

	Record apiclient.Record
	Back   string
}

type table struct {
	Columns []string
	Rows    [][]string
	Count   int
}

func newTable(rows apiclient.Records) *table {
	cols := rows.Columns()
	t := &table{Columns: cols, Count: len(rows)}
	for _, row := range rows {
		line := make([]string, len(cols))
		for i, col := range cols {
			line[i] = cell(row[col])
		}
		t.Rows = append(t.Rows, line)
	}
	return t
}

// cell renders a decoded JSON value for display
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func mask(token string) string {
	const keep = 12
	if token == "" {
		return "(none)"
	}
	if len(token) <= keep {
		return token
	}
	return token[:keep] + "..."
}
