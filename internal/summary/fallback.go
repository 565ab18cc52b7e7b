package summary

import (
	"strings"
	"text/template"
)

// The fallback is deliberately boring: a fixed sentence assembled from the
// payload fields, identical across runs for identical input.
const fallbackTmpl = `{{- if .Median -}}
{{ .Subject }} has a median market price of {{ .Median.StringFixed 2 }} {{ .Currency }} across {{ .SampleCount }} listing{{ if ne .SampleCount 1 }}s{{ end }}.
{{- if .RRP }} The reference price of {{ .RRP.StringFixed 2 }} {{ .Currency }} is
{{- if eq .Direction "EQUAL" }} in line with the market median.
{{- else }} {{ .DeltaPercent.Abs.StringFixed 1 }}% {{ if eq .Direction "ABOVE" }}above{{ else }}below{{ end }} the market median.
{{- end }}
{{- else }} No reference price was available for comparison.
{{- end }}
{{- else -}}
No comparable marketplace listings were found for {{ .Subject }}; its market position could not be assessed.
{{- end }}`

var fallbackTemplate = template.Must(template.New("fallback").Parse(fallbackTmpl))

type fallbackData struct {
	Payload
	Subject string
}

// Fallback renders the deterministic local summary sentence.
func Fallback(p Payload) string {
	subject := p.ProductName
	if subject == "" {
		subject = p.Identifier
	}
	if subject == "" {
		subject = "the product"
	}

	var sb strings.Builder
	if err := fallbackTemplate.Execute(&sb, fallbackData{Payload: p, Subject: subject}); err != nil {
		// The template only dereferences fields guarded by its own
		// conditionals; execution cannot realistically fail.
		return subject + ": market summary unavailable."
	}
	return sb.String()
}
