// Package report renders one pipeline result for human or machine
// consumption. It is the headless stand-in for a dashboard: text for the
// terminal, JSON for tooling, HTML for sharing.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	texttemplate "text/template"

	"github.com/spyglasshq/spyglass/internal/pipeline"
)

// WriteJSON writes the result as indented JSON.
func WriteJSON(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

const textTmpl = `Market Price Report
-------------------
Product:     {{ with .Record.Name }}{{ . }}{{ else }}(unnamed){{ end }}
Identifier:  {{ with .Record.Identifier }}{{ . }}{{ else }}-{{ end }}
Source:      {{ .Record.SourceURL }}
RRP:         {{ with .Record.RRP }}{{ .StringFixed 2 }} {{ $.Record.Currency }}{{ else }}not found{{ end }}

{{ with .Estimate -}}
Market estimate ({{ .SampleCount }} listings):
  Median:  {{ .Median.StringFixed 2 }} {{ $.Record.Currency }}
  Range:   {{ .MinPrice.StringFixed 2 }} - {{ .MaxPrice.StringFixed 2 }} {{ $.Record.Currency }}
{{ else -}}
Market estimate: no usable listings
{{ end }}
{{- with .Deviation }}
Deviation vs RRP: {{ .DeltaAbsolute.StringFixed 2 }} ({{ .DeltaPercent.StringFixed 1 }}%, {{ .Direction }})
{{- end }}

Summary:
{{ .Summary }}
{{ if .Partial }}
Partial result; degraded stages:
{{- range .Errors }}
  [{{ .Stage }}] {{ .Err }}
{{- end }}
{{ end -}}
`

// WriteText writes a plain-text report.
func WriteText(w io.Writer, res *pipeline.Result) error {
	t, err := texttemplate.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}
	if err := t.Execute(w, res); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Market Price Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 160px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .summary { margin-top: 20px; padding: 15px; background: #f9f9f4; border-left: 4px solid #ccc; }
  .warn { color: #a60; }
</style>
</head>
<body>
  <h1>Market Price Report</h1>
  <p><strong>{{ with .Record.Name }}{{ . }}{{ else }}(unnamed product){{ end }}</strong>
  {{- with .Record.Identifier }} &middot; {{ . }}{{ end }}</p>
  <p><a href="{{ .Record.SourceURL }}">{{ .Record.SourceURL }}</a></p>

  <div class="stat-card">
    <div>RRP</div>
    <div class="stat-val">{{ with .Record.RRP }}{{ .StringFixed 2 }} {{ $.Record.Currency }}{{ else }}&mdash;{{ end }}</div>
  </div>
  {{ with .Estimate }}
  <div class="stat-card">
    <div>Median ({{ .SampleCount }} listings)</div>
    <div class="stat-val">{{ .Median.StringFixed 2 }} {{ $.Record.Currency }}</div>
  </div>
  {{ end }}
  {{ with .Deviation }}
  <div class="stat-card">
    <div>Deviation</div>
    <div class="stat-val">{{ .DeltaPercent.StringFixed 1 }}% {{ .Direction }}</div>
  </div>
  {{ end }}

  <div class="summary">{{ .Summary }}</div>

  {{ if .Partial }}
  <p class="warn">Partial result:</p>
  <ul>
    {{- range .Errors }}
    <li class="warn">[{{ .Stage }}] {{ .Err }}</li>
    {{- end }}
  </ul>
  {{ end }}
</body>
</html>
`

// WriteHTML writes a small static HTML report page.
func WriteHTML(w io.Writer, res *pipeline.Result) error {
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}
	if err := t.Execute(w, res); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
