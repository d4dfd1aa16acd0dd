// Package transcript defines the chat transcript domain types and the store contract.
package transcript

import (
	"context"
	"errors"
	"strings"
	"time"
)

// TimeLayout is the day/month hour:minute stamp written on each transcript line.
const TimeLayout = "02/01 15:04"

// ErrNotFound is returned when no transcript exists for a key.
var ErrNotFound = errors.New("transcript not found")

// Message is a single chat line. It is never mutated once written.
type Message struct {
	Author string
	Text   string
	At     time.Time
}

var flattener = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Line renders the message in transcript record form:
//
//	<author> (<dd/MM HH:mm>): <text>
//
// Line breaks inside Text are flattened so a message always occupies one line.
func (m Message) Line() string {
	return m.Author + " (" + m.At.Format(TimeLayout) + "): " + Flatten(m.Text)
}

// Flatten replaces line breaks in s with spaces.
func Flatten(s string) string {
	return flattener.Replace(s)
}

// Store is an append-only per-key line log.
type Store interface {
	// Append writes msg to the transcript for key, creating it if needed. The line
	// is durable when Append returns. A zero At is stamped with the store clock.
	Append(ctx context.Context, key string, msg Message) error

	// ReadAll returns every line for key in insertion order.
	// Returns ErrNotFound if nothing was ever written for key.
	ReadAll(ctx context.Context, key string) ([]string, error)

	// List returns the keys that have a transcript, sorted.
	List(ctx context.Context) ([]string, error)
}

// SplitLine breaks a transcript record into its author, stamp and text.
// ok is false when line is not in record form.
func SplitLine(line string) (author, stamp, text string, ok bool) {
	open := strings.Index(line, " (")
	if open <= 0 {
		return "", "", "", false
	}

	rest := line[open+2:]
	end := strings.Index(rest, "): ")
	if end != len(TimeLayout) {
		return "", "", "", false
	}

	return line[:open], rest[:end], rest[end+3:], true
}
