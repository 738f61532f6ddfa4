package report

import (
	"fmt"
	"sync"

	"github.com/beevik/etree"

	"github.com/seeflaw/seeflaw/internal/errors"
)

// ErrorEntry is one numbered error of a run.
type ErrorEntry struct {
	Name    string
	Message string
}

// Errors numbers the errors of a run Exception1, Exception2, ... and keeps
// them for the exception listing of the console report.
type Errors struct {
	mu      sync.Mutex
	entries []ErrorEntry
}

// NewErrors returns an empty error listing.
func NewErrors() *Errors {
	return &Errors{}
}

// Add numbers err and returns its <error name="ExceptionN"> element.
func (e *Errors) Add(err error) *etree.Element {
	msg := Message(err)
	e.mu.Lock()
	name := fmt.Sprintf("Exception%d", len(e.entries)+1)
	e.entries = append(e.entries, ErrorEntry{Name: name, Message: msg})
	e.mu.Unlock()

	el := etree.NewElement("error")
	el.CreateAttr("name", name)
	el.SetText(msg)
	return el
}

// Entries returns the numbered errors in order.
func (e *Errors) Entries() []ErrorEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ErrorEntry(nil), e.entries...)
}

// Message is the text reported for err: the error itself, followed by the
// stack when a fixture panicked.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if stack := errors.StackOf(err); stack != "" {
		msg += "\n" + stack
	}
	return msg
}
