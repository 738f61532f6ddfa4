package notify

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultTemplate is used for targets without their own template.
const DefaultTemplate = `{{run.status_emoji}} SeeFlaw {{run.test}}: {{run.status | upper}}` +
	`{{if ne run.failed "0"}} ({{run.failed}} failed, {{run.errors}} errors){{end}}`

// TemplateData holds all data available to notification templates.
type TemplateData struct {
	Run  map[string]string
	Args map[string]string
}

// RunInfo describes a finished run.
type RunInfo struct {
	Test       string
	RunID      string
	Successful bool
	Calls      int
	Failed     int
	Errors     int
	Duration   string
}

// BuildTemplateData constructs template data from a finished run and its
// arguments.
func BuildTemplateData(info RunInfo, args map[string]string) TemplateData {
	status := "passed"
	if !info.Successful {
		status = "failed"
	}
	run := map[string]string{
		"test":         info.Test,
		"id":           info.RunID,
		"status":       status,
		"status_emoji": statusEmoji(status),
		"calls":        strconv.Itoa(info.Calls),
		"failed":       strconv.Itoa(info.Failed),
		"errors":       strconv.Itoa(info.Errors),
		"duration":     info.Duration,
	}

	argsCopy := make(map[string]string, len(args))
	for k, v := range args {
		argsCopy[k] = v
	}
	return TemplateData{Run: run, Args: argsCopy}
}

func statusEmoji(status string) string {
	switch status {
	case "failed":
		return "\U0001f534" // 🔴
	case "passed":
		return "\U0001f7e2" // 🟢
	default:
		return "\u2753" // ❓
	}
}

// Render executes a Go text/template string with Sprig functions and the
// run and args accessor functions.
func Render(tmplStr string, data TemplateData) (string, error) {
	funcMap := sprig.TxtFuncMap()

	// {{run.status}}: "run" returns the map, ".status" accesses a key.
	funcMap["run"] = func() map[string]string { return data.Run }
	funcMap["args"] = func() map[string]string { return data.Args }

	t, err := template.New("notify").Option("missingkey=zero").Funcs(funcMap).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	return buf.String(), nil
}
