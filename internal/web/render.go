package web

import (
	"bytes"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/user/vernacular/internal/identity"
	"github.com/user/vernacular/internal/preview"
	"github.com/user/vernacular/internal/session"
	"github.com/user/vernacular/internal/types"
)

// indexData is the template data for GET /.
type indexData struct {
	Mode       identity.Mode
	LoggedIn   bool
	Snapshot   *session.Snapshot
	DataLayer  string
	EmptyState string
	Messages   []messageView
}

type messageView struct {
	Sender   types.Sender
	Time     string
	HTML     template.HTML
	HasChart bool
	HasTable bool
}

type renderer struct {
	md   goldmark.Markdown
	tmpl *template.Template
}

func newRenderer() *renderer {
	return &renderer{
		md:   goldmark.New(goldmark.WithExtensions(extension.GFM)),
		tmpl: template.Must(template.New("index").Parse(indexTemplate)),
	}
}

func (r *renderer) render(w io.Writer, snap *session.Snapshot, mode identity.Mode) error {
	data := indexData{Mode: mode, EmptyState: preview.EmptyState}
	if snap != nil {
		data.LoggedIn = true
		data.Snapshot = snap
		data.DataLayer = snap.DataLayer()
		data.Messages = make([]messageView, len(snap.Transcript))
		for i, m := range snap.Transcript {
			data.Messages[i] = messageView{
				Sender:   m.Sender,
				Time:     formatTime(m.Timestamp),
				HTML:     r.markdown(m.Text),
				HasChart: len(m.ChartData) > 0,
				HasTable: len(m.TableData) > 0,
			}
		}
	}
	return r.tmpl.Execute(w, data)
}

// markdown converts narrative text to HTML. Raw HTML in the text is
// dropped by goldmark's default renderer.
func (r *renderer) markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(strings.TrimSpace(buf.String()))
}

func formatTime(t time.Time) string {
	return t.Local().Format("15:04:05")
}

const indexTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Vernacular Ops</title>
<style>
body { background: #020617; color: #cbd5e1; font-family: monospace; margin: 2rem; }
.user { color: #34d399; }
.system { color: #e2e8f0; }
.meta { color: #64748b; font-size: 0.8rem; }
.badge { border: 1px solid #334155; padding: 0 0.4rem; }
</style>
</head>
<body>
{{- if not .LoggedIn}}
<h1>VERNACULAR OPS</h1>
<p>Login required. POST your credentials to <code>/api/login</code>.</p>
{{- if eq .Mode "simulated"}}
<p class="meta">MOCK AUTH MODE: any email with an @ and a non-empty password is accepted.</p>
{{- end}}
{{- else}}
<h1>VERNACULAR OPS</h1>
<p class="meta">{{with .Snapshot.Identity}}{{.DisplayName}}{{end}} | STATUS <span class="badge">{{.Snapshot.State.Status}}</span> | DATA LAYER <span class="badge">{{.DataLayer}}</span> | RECORDS {{.Snapshot.State.RecordsLoaded}}</p>
<h2>Sources</h2>
{{- if .Snapshot.Sources}}
<ul>
{{- range .Snapshot.Sources}}
<li>{{.Name}} ({{.RecordCount}} rows)</li>
{{- end}}
</ul>
{{- else}}
<p class="meta">{{.EmptyState}}</p>
{{- end}}
<h2>Transcript</h2>
{{- range .Messages}}
<div class="{{.Sender}}">
<span class="meta">[{{.Time}}] {{.Sender}}</span>
{{.HTML}}
{{- if .HasChart}}<p class="meta">chart data attached</p>{{end}}
{{- if .HasTable}}<p class="meta">table data attached</p>{{end}}
</div>
{{- end}}
{{- end}}
</body>
</html>
`
