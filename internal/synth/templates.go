package synth

import (
	"strings"
	"text/template"
)

// item is a two-part template row: list entries, table rows, question and
// answer pairs, glossary terms, roadmap phases.
type item struct {
	Name string
	Text string
}

// slots is the data every template renders from. Each template reads the
// subset it needs.
type slots struct {
	Topic    string
	Context  string
	Body     string
	Extra    string
	Item1    string
	Item2    string
	Desc1    string
	Desc2    string
	Summary  string
	Question string
	Answer   string
	Focus    string
	Language string
	Closing  string
	Items    []item
	Lines    []string
	Lines2   []string
}

var templateSources = map[Intent]string{
	List: `{{range $i, $it := .Items}}{{inc $i}}. **{{$it.Name}}**: {{$it.Text}}
{{end}}{{if .Extra}}{{.Extra}}{{end}}`,

	Comparison: `**{{.Item1}}** vs **{{.Item2}}**:
- **{{.Item1}}**: {{.Desc1}}
- **{{.Item2}}**: {{.Desc2}}
Summary: {{.Summary}}`,

	Definition: `**{{.Topic}}**: {{.Body}}{{if .Extra}} {{.Extra}}{{end}} It is used in {{.Context}}.`,

	Story: `**The Story of {{.Topic}}**
{{.Body}}
{{if .Extra}}{{.Extra}}
{{end}}{{.Closing}}`,

	QA: `**Question**: {{.Question}}
**Answer**: {{.Answer}}{{if .Extra}} {{.Extra}}{{end}}`,

	Summary: `**Summary of {{.Topic}}**: {{.Body}}
Key points:
{{range .Lines}}- {{.}}
{{end}}`,

	Table: `| **Item** | **Description** |
|----------|-----------------|
{{range .Items}}| {{.Name}} | {{.Text}} |
{{end}}`,

	Tutorial: `**Tutorial: {{.Topic}}**
**Objective**: Learn {{.Topic}} effectively.
**Steps**:
{{range $i, $s := .Lines}}{{inc $i}}. {{$s}}
{{end}}**Tips**: Focus on {{.Focus}}.`,

	ProsCons: `**Pros and Cons of {{.Topic}}**
**Pros**:
{{range .Lines}}- {{.}}
{{end}}**Cons**:
{{range .Lines2}}- {{.}}
{{end}}**Verdict**: {{.Topic}} is valuable but needs careful application.`,

	FAQ: `**FAQ: {{.Topic}}**
{{range $i, $q := .Items}}{{inc $i}}. **{{$q.Name}}** {{$q.Text}}
{{end}}`,

	Timeline: `**Timeline of {{.Topic}}**
{{range .Items}}- {{.Name}}: {{.Text}}
{{end}}`,

	CodeSnippet: `**{{.Language}} example: {{.Topic}}**
- Code: print("{{.Body}}")
- Explanation: This code demonstrates {{.Context}}.
{{if .Extra}}- Note: {{.Extra}}
{{end}}`,

	CaseStudy: `**Case Study: {{.Topic}}**
**Background**: {{.Body}}
**Analysis**: {{.Desc1}}
**Outcome**: {{.Closing}}{{if .Extra}}
{{.Extra}}{{end}}`,

	Recommendation: `**Recommendations for {{.Topic}}**
{{range $i, $it := .Lines}}{{inc $i}}. {{$it}}
{{end}}**Rationale**: Based on {{.Focus}}.`,

	Interview: `**Interview on {{.Topic}}**
{{range $i, $q := .Items}}{{inc $i}}. **{{$q.Name}}** {{$q.Text}}
{{end}}`,

	Glossary: `**Glossary: {{.Topic}}**
{{range .Items}}- **{{.Name}}**: {{.Text}}
{{end}}`,

	Troubleshooting: `**Troubleshooting: {{.Topic}}**
{{range $i, $it := .Items}}{{inc $i}}. {{$it.Name}}: {{$it.Text}}
{{end}}**Tips**: Focus on {{.Focus}}.`,

	Roadmap: `**Roadmap for {{.Topic}}**
{{range $i, $p := .Items}}{{inc $i}}. {{$p.Text}} ({{$p.Name}})
{{end}}**Goals**: Achieve mastery in {{.Topic}}.`,

	Analysis: `**Analysis of {{.Topic}}**
**Overview**: {{.Body}}
**Findings**:
{{range .Lines}}- {{.}}
{{end}}**Conclusion**: {{.Closing}}`,

	Explanation: `{{.Body}}{{if .Extra}} {{.Extra}}{{end}}{{if .Focus}} Examples include {{.Focus}}.{{end}}`,
}

const fallbackSource = `I'm exploring **{{.Topic}}**. Here's my take: {{.Topic}} is a key concept in {{.Context}}. Let's dive deeper!`

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

type templates struct {
	byIntent map[Intent]*template.Template
	fallback *template.Template
}

func mustParseTemplates() templates {
	t := templates{byIntent: make(map[Intent]*template.Template, len(templateSources))}
	for intent, src := range templateSources {
		t.byIntent[intent] = template.Must(template.New(intent.String()).Funcs(funcs).Parse(src))
	}
	t.fallback = template.Must(template.New("fallback").Parse(fallbackSource))
	return t
}

func render(t *template.Template, data slots) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
