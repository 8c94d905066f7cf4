package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
}

type factRow struct {
	Name  string
	Value string
}

type leadSummaryEmailData struct {
	baseEmailData
	ContactValue    string
	ContactKind     string
	Channel         string
	Language        string
	ConversationKey string
	Snapshot        string
	Facts           []factRow
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func factRows(facts map[string]string) []factRow {
	rows := make([]factRow, 0, len(facts))
	for name, value := range facts {
		if value == "" {
			continue
		}
		rows = append(rows, factRow{Name: name, Value: value})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}
