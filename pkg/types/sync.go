package types

// ChangeSource classifies who made a change to a plan document field.
type ChangeSource string

const (
	// ChangeSourceUser marks a change made by a human editing the markdown.
	ChangeSourceUser ChangeSource = "user_edit"
	// ChangeSourceRemote marks a change written by an automated re-sync from
	// the remote planning system.
	ChangeSourceRemote ChangeSource = "jira_update"
)

// FieldChange records one changed markdown field inside a diff hunk. It is
// computed per sync operation and never persisted.
type FieldChange struct {
	Field        string
	OldValue     string
	NewValue     string
	OldTimestamp string
	NewTimestamp string
	Source       ChangeSource
}

// APICall describes one remote create/update operation derived
// from a changed plan document.
type APICall struct {
	Operation string // "create" or "update"
	Entity    string // "objective" or "epic"
	ID        int    // zero for creates
	Fields    map[string]string
}

// SyncResult is the outcome of an init, pull, or push operation. It is the
// engine's only contract with callers and is immutable once constructed.
type SyncResult struct {
	Success   bool
	Message   string
	Conflicts []string
	APICalls  []APICall
}
