package models

import (
	"fmt"
	"strings"
)

// BookMetadata is the resolved, disambiguated identity of a book. Optional
// fields stay empty unless the gathering step actually discovered them.
type BookMetadata struct {
	BookTitle     string   `json:"book_title"`
	Author        string   `json:"author"`
	Description   string   `json:"description,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
}

// Empty reports whether metadata resolution found no book at all.
func (m BookMetadata) Empty() bool {
	return strings.TrimSpace(m.BookTitle) == "" && strings.TrimSpace(m.Author) == ""
}

// Validate checks structural consistency: a metadata record is either fully
// empty (book not found) or carries at least a title.
func (m BookMetadata) Validate() error {
	if m.Empty() {
		if m.Description != "" || m.PublishedDate != "" || len(m.Categories) > 0 || m.ImageURL != "" {
			return fmt.Errorf("book metadata: descriptive fields set without a title")
		}
		return nil
	}
	if strings.TrimSpace(m.BookTitle) == "" {
		return fmt.Errorf("book metadata: author without title")
	}
	return nil
}

// BuildBookMetadata validates a structured metadata record against the
// evidence it was derived from. An empty record is always valid (book not
// found); a populated record must name a title present in the evidence.
func BuildBookMetadata(ev Evidence, m BookMetadata) (BookMetadata, error) {
	if err := m.Validate(); err != nil {
		return BookMetadata{}, err
	}
	if m.Empty() {
		return BookMetadata{}, nil
	}
	if err := requireMentioned(ev, "book title", m.BookTitle); err != nil {
		return BookMetadata{}, err
	}
	return m, nil
}

// BookContext describes where and when a story takes place.
type BookContext struct {
	PrimaryLocations []string `json:"primary_locations"`
	TimePeriod       string   `json:"time_period,omitempty"`
	Themes           []string `json:"themes,omitempty"`
}

// Empty reports whether context research found nothing.
func (c BookContext) Empty() bool {
	return len(c.PrimaryLocations) == 0 && c.TimePeriod == "" && len(c.Themes) == 0
}

// BuildBookContext validates a structured context record. Every primary
// location must appear in the evidence; with empty evidence the record must
// be empty.
func BuildBookContext(ev Evidence, c BookContext) (BookContext, error) {
	if ev.Empty() {
		if !c.Empty() {
			return BookContext{}, fmt.Errorf("book context: %w", ErrEmptyEvidence)
		}
		return BookContext{}, nil
	}
	for _, loc := range c.PrimaryLocations {
		if err := requireMentioned(ev, "location", loc); err != nil {
			return BookContext{}, err
		}
	}
	return c, nil
}
