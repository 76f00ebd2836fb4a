package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Field length limits for note fields. They bound what reaches the
// moderation classifier and the TEXT columns.
const (
	MaxTitleLen   = 512
	MaxContentLen = 64 * 1024 // 64 KB
)

// Note is a user-authored title/content record with pin and creation-time metadata.
//
// ID is assigned by the store on insert and never changes afterwards.
// Timestamp is the creation moment; edits do not move it.
type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IsPinned  bool      `json:"is_pinned"`
	Timestamp time.Time `json:"timestamp"`
}

// ModerationText is the text sent to the moderation classifier for a
// title/content pair.
func ModerationText(title, content string) string {
	return title + " " + content
}

// ErrTitleRequired is returned by ValidateNoteInput for a blank title.
var ErrTitleRequired = errors.New("title is required")

// ValidateNoteInput checks the per-field limits on user-supplied note text.
// A blank title is rejected because notes without one are never persisted.
func ValidateNoteInput(title, content string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}
	if len(title) > MaxTitleLen {
		return fmt.Errorf("title exceeds maximum length of %d bytes", MaxTitleLen)
	}
	if len(content) > MaxContentLen {
		return fmt.Errorf("content exceeds maximum length of %d bytes", MaxContentLen)
	}
	return nil
}

// Less reports whether a sorts before b in listing order: pinned notes first,
// then newest first. Equal timestamps fall back to the higher ID.
func Less(a, b Note) bool {
	if a.IsPinned != b.IsPinned {
		return a.IsPinned
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

// TitleContains reports whether the note title contains q, ignoring case.
// An empty q matches every note.
func TitleContains(n Note, q string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(n.Title), strings.ToLower(q))
}

// FilterByTitle returns the notes whose title contains q (case-insensitive),
// keeping the input order. The input slice is not modified.
func FilterByTitle(notes []Note, q string) []Note {
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if TitleContains(n, q) {
			out = append(out, n)
		}
	}
	return out
}
