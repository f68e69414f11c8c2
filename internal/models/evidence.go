package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFabricatedEntity is returned by result constructors when a structured
	// output names an entity that never appeared in the gathered evidence.
	ErrFabricatedEntity = errors.New("entity not present in gathered evidence")

	// ErrEmptyEvidence is returned when a non-empty result is built from
	// evidence with zero findings.
	ErrEmptyEvidence = errors.New("non-empty result built from empty evidence")
)

// Finding is one raw record produced by a gathering step: a tool response,
// a search snippet, a book record. Free-form, no schema.
type Finding struct {
	Source  string `json:"source"`
	Query   string `json:"query,omitempty"`
	Content string `json:"content"`
}

// Evidence is the accumulated output of a gathering stage. Structuring stages
// receive Evidence and nothing else; every entity they emit must be traceable
// back to it.
type Evidence struct {
	Findings []Finding `json:"findings"`
}

// Add appends a finding.
func (e *Evidence) Add(source, query, content string) {
	e.Findings = append(e.Findings, Finding{Source: source, Query: query, Content: content})
}

// Empty reports whether the gathering stage found nothing.
func (e Evidence) Empty() bool {
	for _, f := range e.Findings {
		if strings.TrimSpace(f.Content) != "" {
			return false
		}
	}
	return true
}

// Mentions reports whether name appears anywhere in the gathered findings.
// Matching is case-insensitive; a name is considered mentioned if its folded
// form is a substring of any finding.
func (e Evidence) Mentions(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	for _, f := range e.Findings {
		if strings.Contains(strings.ToLower(f.Content), name) {
			return true
		}
	}
	return false
}

// Text joins all findings into a single prompt-ready block.
func (e Evidence) Text() string {
	var b strings.Builder
	for i, f := range e.Findings {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if f.Query != "" {
			fmt.Fprintf(&b, "[%s] query=%q\n", f.Source, f.Query)
		} else {
			fmt.Fprintf(&b, "[%s]\n", f.Source)
		}
		b.WriteString(f.Content)
	}
	return b.String()
}

// requireMentioned is the shared guard used by result constructors.
func requireMentioned(ev Evidence, kind, name string) error {
	if ev.Empty() {
		return fmt.Errorf("%s %q: %w", kind, name, ErrEmptyEvidence)
	}
	if !ev.Mentions(name) {
		return fmt.Errorf("%s %q: %w", kind, name, ErrFabricatedEntity)
	}
	return nil
}
