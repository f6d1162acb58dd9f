package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var packetTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"deref": func(v *int) int {
			if v == nil {
				return 0
			}
			return *v
		},
	}

	templateContent, err := templateFS.ReadFile("templates/packet.html")
	if err != nil {
		packetTemplate = template.Must(template.New("packet").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	packetTemplate = template.Must(template.New("packet").Funcs(funcMap).Parse(string(templateContent)))
}

func RenderPacketHTML(p Packet) (string, error) {
	var buf bytes.Buffer
	if err := packetTemplate.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.ProductName}}</title></head>
<body>
  <h1>{{.ProductName}}</h1>
  <div>{{.SummaryHTML}}</div>
  {{range .Diff.Changes}}<p>{{.Label}}: {{.OriginalText}} -> {{.NewText}}</p>{{else}}<p>{{.Diff.Message}}</p>{{end}}
</body>
</html>`
