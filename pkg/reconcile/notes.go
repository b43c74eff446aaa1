package reconcile

import "strings"

const (
	notesOpen  = "[tindico]"
	notesClose = "[/tindico]"
)

// managedBlock renders the notes region owned by tindico
func managedBlock(url, description string) string {
	var b strings.Builder
	b.WriteString(notesOpen)
	b.WriteByte('\n')
	if url != "" {
		b.WriteString(url)
		b.WriteByte('\n')
	}
	if description != "" {
		// a closing marker inside the text would end the region early
		b.WriteString(strings.ReplaceAll(description, notesClose, "[/ tindico]"))
		b.WriteByte('\n')
	}
	b.WriteString(notesClose)
	return b.String()
}

// mergeNotes replaces the managed region of notes with block, keeping any
// text outside it. Without an existing region the block is appended.
func mergeNotes(notes, block string) string {
	start := strings.Index(notes, notesOpen)
	if start >= 0 {
		if rel := strings.Index(notes[start:], notesClose); rel >= 0 {
			end := start + rel + len(notesClose)
			return notes[:start] + block + notes[end:]
		}
	}
	user := strings.TrimRight(notes, " \t\r\n")
	if user == "" {
		return block
	}
	return user + "\n\n" + block
}
