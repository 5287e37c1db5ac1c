// Package document defines the read/write view of a page that the resolution engine works
// against. Two adapters implement it: cdpdoc drives a live Chrome tab and htmldoc wraps a
// parsed static document.
package document

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup finds no element.
	ErrNotFound = errors.New("document: element not found")
	// ErrStaleHandle is returned when a handle no longer refers to an attached element.
	ErrStaleHandle = errors.New("document: stale element handle")
)

// Handle is a stable reference to an element. The same element keeps the same handle
// across snapshots for as long as it stays attached. Zero is never a valid handle.
type Handle int64

// EventKind names a synthetic DOM event.
type EventKind string

const (
	EventInput  EventKind = "input"
	EventChange EventKind = "change"
)

// Adapter is the only surface the resolution engine touches. Implementations are used by a
// single session at a time; calls are never issued concurrently.
type Adapter interface {
	// Snapshot captures every element of the document, in document order.
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Query returns the handles of elements matching a CSS selector, in document order.
	Query(ctx context.Context, selector string) ([]Handle, error)
	// LookupByLabel waits up to timeout for a visible form control whose accessible name
	// matches pattern (case-insensitive regular expression).
	LookupByLabel(ctx context.Context, pattern string, timeout time.Duration) (Handle, error)
	// AssignValue sets the value through the element's prototype setter. No events fire.
	AssignValue(ctx context.Context, h Handle, value string) error
	// SelectIndex sets selectedIndex on a select element. No events fire.
	SelectIndex(ctx context.Context, h Handle, index int) error
	// Dispatch fires one bubbling synthetic event on the element.
	Dispatch(ctx context.Context, h Handle, kind EventKind) error
	// Value reads the element's current value property.
	Value(ctx context.Context, h Handle) (string, error)
	// Click activates the element.
	Click(ctx context.Context, h Handle) error
	// PageText returns the rendered text of the document body.
	PageText(ctx context.Context) (string, error)
}
