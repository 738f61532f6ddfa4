package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/charmbracelet/lipgloss"
)

// Summary is the console view of a finished run.
type Summary struct {
	Test       string
	Successful bool
	RunTime    time.Duration
	Calls      int
	Failed     int
	Errored    int
	Failures   []Failure
	Errors     []ErrorEntry
}

// Failure names a call that did not pass.
type Failure struct {
	Fixture string
	Method  string
	Status  string
}

// Summarize counts the calls of a result tree. Every element whose tag ends
// in "result" and carries a fixture attribute is a call.
func Summarize(test string, tree *etree.Element, successful bool, runTime time.Duration, errs []ErrorEntry) Summary {
	s := Summary{Test: test, Successful: successful, RunTime: runTime, Errors: errs}
	if tree == nil {
		return s
	}
	for _, el := range tree.FindElements(".//*[@fixture]") {
		if !strings.HasSuffix(el.Tag, "result") {
			continue
		}
		s.Calls++
		st := el.SelectAttrValue("status", "")
		switch st {
		case StatusPassed:
			continue
		case StatusError:
			s.Errored++
		default:
			s.Failed++
		}
		s.Failures = append(s.Failures, Failure{
			Fixture: el.SelectAttrValue("fixture", ""),
			Method:  el.SelectAttrValue("method", ""),
			Status:  st,
		})
	}
	return s
}

// Render formats the summary. Colours are used when color is set.
func (s Summary) Render(color bool) string {
	style := func(c string) lipgloss.Style {
		st := lipgloss.NewStyle()
		if color {
			st = st.Foreground(lipgloss.Color(c))
		}
		return st
	}
	header := style("12").Bold(color)
	passed := style("10")
	failed := style("9")
	muted := style("8")

	var sb strings.Builder
	sb.WriteString(header.Render("SEEFLAW " + s.Test))
	sb.WriteString("\n")

	verdict := passed.Render("PASSED")
	if !s.Successful {
		verdict = failed.Render("FAILED")
	}
	sb.WriteString(fmt.Sprintf("%s  calls: %d  failed: %d  errors: %d  ", verdict, s.Calls, s.Failed, s.Errored))
	sb.WriteString(muted.Render("(" + FormatDuration(s.RunTime) + ")"))
	sb.WriteString("\n")

	for _, f := range s.Failures {
		name := f.Fixture
		if f.Method != "" {
			name += "." + f.Method
		}
		sb.WriteString(fmt.Sprintf("  %s %s\n", failed.Render(f.Status), name))
	}

	if len(s.Errors) > 0 {
		sb.WriteString("\n")
		sb.WriteString(header.Render("EXCEPTIONS"))
		sb.WriteString("\n")
		for _, e := range s.Errors {
			sb.WriteString(failed.Render(e.Name))
			sb.WriteString(": ")
			sb.WriteString(e.Message)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
