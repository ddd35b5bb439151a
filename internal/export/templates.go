package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var scoreboardTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	content, err := templateFS.ReadFile("templates/scoreboard.html")
	if err != nil {
		panic("export: missing embedded scoreboard template: " + err.Error())
	}
	scoreboardTemplate = template.Must(template.New("scoreboard").Funcs(funcMap).Parse(string(content)))
}

// RenderScoreboardHTML renders the scoreboard template.
func RenderScoreboardHTML(data ScoreboardData) (string, error) {
	var buf bytes.Buffer
	if err := scoreboardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
