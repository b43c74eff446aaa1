package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/djwarf/tindico/pkg/calendar"
)

// Sentinel errors for errors.Is checks
var (
	// ErrStoreWrite indicates the backend rejected or failed a write
	ErrStoreWrite = errors.New("calendar write failed")

	// ErrStoreRead indicates a lookup against the backend failed
	ErrStoreRead = errors.New("calendar lookup failed")

	// ErrAmbiguous indicates more than one entry matched a lookup
	ErrAmbiguous = errors.New("ambiguous calendar entries")

	// ErrNoMatch indicates no entry matched a proximity lookup
	ErrNoMatch = errors.New("no matching calendar entry")
)

// Candidate identifies one entry offered for manual disambiguation
type Candidate struct {
	ID    string
	Title string
	Start string
}

func candidatesOf(entries []*calendar.Event) []Candidate {
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, Candidate{
			ID:    e.ID,
			Title: e.Title,
			Start: e.Start.Format("2006-01-02 15:04 MST"),
		})
	}
	return out
}

func candidateIDs(cs []Candidate) string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return strings.Join(ids, ", ")
}

// StoreWriteError is returned when persisting an entry fails. Nothing was
// written when it is returned.
type StoreWriteError struct {
	Op  string // "create", "update" or "attach"
	Err error
}

// Error implements the error interface
func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("calendar %s failed: %v", e.Op, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StoreWriteError) Is(target error) bool {
	return target == ErrStoreWrite
}

// StoreReadError is returned when looking up existing entries fails
type StoreReadError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *StoreReadError) Error() string {
	return fmt.Sprintf("calendar lookup (%s) failed: %v", e.Op, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreReadError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StoreReadError) Is(target error) bool {
	return target == ErrStoreRead
}

// StoreLookupAmbiguous is returned when more than one entry carries the same
// sync key. It is never resolved automatically.
type StoreLookupAmbiguous struct {
	Key        SyncKey
	Candidates []Candidate
}

// Error implements the error interface
func (e *StoreLookupAmbiguous) Error() string {
	return fmt.Sprintf("%d calendar entries share key %s: %s", len(e.Candidates), e.Key, candidateIDs(e.Candidates))
}

// Is implements errors.Is support
func (e *StoreLookupAmbiguous) Is(target error) bool {
	return target == ErrAmbiguous
}

// NoMatchingEntry is returned by attach when no entry has the event's title
// and start time.
type NoMatchingEntry struct {
	Title string
	Start string
}

// Error implements the error interface
func (e *NoMatchingEntry) Error() string {
	return fmt.Sprintf("no calendar entry titled %q at %s", e.Title, e.Start)
}

// Is implements errors.Is support
func (e *NoMatchingEntry) Is(target error) bool {
	return target == ErrNoMatch
}

// AmbiguousMatch is returned by attach when several entries match. The
// candidates let the caller pick one and retry with AttachReferenceTo.
type AmbiguousMatch struct {
	Title      string
	Candidates []Candidate
}

// Error implements the error interface
func (e *AmbiguousMatch) Error() string {
	return fmt.Sprintf("%d calendar entries match %q: %s", len(e.Candidates), e.Title, candidateIDs(e.Candidates))
}

// Is implements errors.Is support
func (e *AmbiguousMatch) Is(target error) bool {
	return target == ErrAmbiguous
}
