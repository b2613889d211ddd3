package render

import (
	"bytes"
	"html/template"
	"strings"

	"bibleclock/internal/model"
)

// screenTmpl is the panel face: a single self-contained page captured by
// headless Chromium. Layout is black-on-white to survive 1bpp quantization.
const screenTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  html, body {
    margin: 0;
    width: {{.Width}}px;
    height: {{.Height}}px;
    background: #fff;
    color: #000;
    font-family: Georgia, "Times New Roman", serif;
    overflow: hidden;
  }
  .screen {
    box-sizing: border-box;
    width: 100%;
    height: 100%;
    padding: 28px 40px;
    display: flex;
    flex-direction: column;
  }
  .title {
    font-size: 44px;
    font-weight: bold;
    text-align: center;
  }
  .subtitle {
    font-size: 20px;
    text-align: center;
    margin-top: 4px;
  }
  .rule {
    border-top: 2px solid #000;
    margin: 14px 60px;
  }
  .text {
    flex: 1;
    font-size: {{.TextSize}}px;
    line-height: 1.35;
    text-align: center;
    white-space: pre-line;
    overflow: hidden;
    display: flex;
    align-items: center;
    justify-content: center;
  }
  .secondary {
    font-size: 20px;
    font-style: italic;
    text-align: center;
    margin-top: 10px;
  }
  .footer {
    display: flex;
    justify-content: space-between;
    font-size: 16px;
    margin-top: 12px;
  }
</style>
</head>
<body data-ready="true">
<div class="screen">
  <div class="title">{{.Title}}</div>
  {{if .Subtitle}}<div class="subtitle">{{.Subtitle}}</div>{{end}}
  <div class="rule"></div>
  <div class="text">{{.Text}}</div>
  {{if .Secondary}}<div class="secondary">{{.Secondary}} ({{.SecondaryLabel}})</div>{{end}}
  <div class="footer">
    <span>{{.DateLabel}}</span>
    {{if .Badge}}<span>{{.Badge}}</span>{{end}}
    <span>{{.Label}}</span>
  </div>
</div>
</body>
</html>
`

var screenTemplate = template.Must(template.New("screen").Parse(screenTmpl))

type screenData struct {
	Width  int
	Height int

	Title          string
	Subtitle       string
	Text           string
	TextSize       int
	Secondary      string
	SecondaryLabel string
	DateLabel      string
	Label          string
	Badge          string
}

// renderHTML produces the screen page for one piece of content.
func renderHTML(content model.DisplayContent, width, height int) ([]byte, error) {
	data := screenData{
		Width:     width,
		Height:    height,
		Title:     content.Title(),
		Text:      content.Text,
		TextSize:  textSize(content.Text),
		DateLabel: content.Timestamp.Format("Monday, January 2"),
		Label:     strings.ToUpper(string(content.Translation)),
	}

	switch content.Kind {
	case model.KindBookSummary:
		data.Subtitle = "Book Summary"
		data.Label = ""
	case model.KindEvent:
		data.Subtitle = content.EventDescription
		if content.Reference != nil {
			data.Subtitle = content.Reference.String()
		}
	}

	if content.SecondaryText != "" {
		data.Secondary = content.SecondaryText
		data.SecondaryLabel = strings.ToUpper(string(content.SecondaryTranslation))
	}

	switch {
	case content.Failed:
		data.Badge = "text unavailable"
	case content.Fallback:
		data.Badge = "offline text"
	}

	var buf bytes.Buffer
	if err := screenTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// textSize steps the body font down as the text grows so long passages still
// fit the fixed panel.
func textSize(text string) int {
	switch n := len(text); {
	case n <= 120:
		return 40
	case n <= 240:
		return 34
	case n <= 420:
		return 28
	default:
		return 22
	}
}
