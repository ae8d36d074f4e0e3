// Package attrib classifies plan-document diff changes as user edits or
// remote sync updates. Its output is advisory: "no detected conflict" means
// no conflict was detected by this heuristic, not that none exists.
package attrib

import (
	"regexp"
	"sort"
	"strings"

	"github.com/clintrovert/tpsync/pkg/types"
)

// lastSyncedField is the sentinel an automated sync pass always bumps. Its
// movement (or lack of it) is the discriminator for change attribution.
const lastSyncedField = "Last Synced"

var fieldLine = regexp.MustCompile(`^\*\*([^*]+)\*\*:\s*(.*)$`)

// fieldOccurrence is one changed field line with its position inside a hunk.
type fieldOccurrence struct {
	index int
	name  string
	value string
}

// hunk holds the classified removed/added field lines of one diff hunk.
type hunk struct {
	removed []fieldOccurrence
	added   []fieldOccurrence
}

// Changes parses a unified diff and pairs removed with added field lines,
// classifying each pair. Malformed input yields an empty list, never an error.
func Changes(diff string) []types.FieldChange {
	var changes []types.FieldChange
	for _, h := range splitHunks(diff) {
		changes = append(changes, h.classify()...)
	}
	return changes
}

// HasConflict reports whether both a human and the remote sync pipeline
// changed the document between the diffed revisions. A blind merge of such a
// diff risks silently dropping one side.
func HasConflict(changes []types.FieldChange) bool {
	var user, remote bool
	for _, c := range changes {
		switch c.Source {
		case types.ChangeSourceUser:
			user = true
		case types.ChangeSourceRemote:
			remote = true
		}
	}
	return user && remote
}

// ConflictingFields returns the sorted union of field names touched by either
// source, for display.
func ConflictingFields(changes []types.FieldChange) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, c := range changes {
		if !seen[c.Field] {
			seen[c.Field] = true
			fields = append(fields, c.Field)
		}
	}
	sort.Strings(fields)
	return fields
}

// Summary aggregates a classified diff for reporting.
type Summary struct {
	Total             int
	UserEdits         int
	RemoteUpdates     int
	ConflictingFields []string
	HasConflict       bool
}

// Summarize counts changes by source and flags conflicts.
func Summarize(changes []types.FieldChange) Summary {
	s := Summary{Total: len(changes)}
	for _, c := range changes {
		switch c.Source {
		case types.ChangeSourceUser:
			s.UserEdits++
		case types.ChangeSourceRemote:
			s.RemoteUpdates++
		}
	}
	s.HasConflict = HasConflict(changes)
	s.ConflictingFields = ConflictingFields(changes)
	return s
}

// splitHunks parses the diff text into a structured per-hunk representation
// first; the field regex only ever runs over lines already classified as
// removed or added.
func splitHunks(diff string) []hunk {
	var hunks []hunk
	var current *hunk
	index := 0

	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "@@") {
			if current != nil {
				hunks = append(hunks, *current)
			}
			current = &hunk{}
			index = 0
			continue
		}
		if current == nil {
			continue
		}
		index++
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			// File headers, not content lines.
		case strings.HasPrefix(line, "-"):
			if m := fieldLine.FindStringSubmatch(line[1:]); m != nil {
				current.removed = append(current.removed, fieldOccurrence{index: index, name: m[1], value: m[2]})
			}
		case strings.HasPrefix(line, "+"):
			if m := fieldLine.FindStringSubmatch(line[1:]); m != nil {
				current.added = append(current.added, fieldOccurrence{index: index, name: m[1], value: m[2]})
			}
		}
	}
	if current != nil {
		hunks = append(hunks, *current)
	}
	return hunks
}

// classify pairs the i-th removed occurrence of a field with the i-th added
// occurrence of the same field and attributes each pair. The nearest
// Last Synced line by absolute index distance supplies the timestamp for each
// side; when a hunk holds several sections close together the nearest line
// can belong to a neighboring section, which is a known approximation of this
// heuristic, not a guarantee.
func (h hunk) classify() []types.FieldChange {
	removedByName := make(map[string][]fieldOccurrence)
	addedByName := make(map[string][]fieldOccurrence)
	var order []string
	var removedSync, addedSync []fieldOccurrence

	for _, occ := range h.removed {
		if occ.name == lastSyncedField {
			removedSync = append(removedSync, occ)
			continue
		}
		if _, ok := removedByName[occ.name]; !ok {
			order = append(order, occ.name)
		}
		removedByName[occ.name] = append(removedByName[occ.name], occ)
	}
	for _, occ := range h.added {
		if occ.name == lastSyncedField {
			addedSync = append(addedSync, occ)
			continue
		}
		addedByName[occ.name] = append(addedByName[occ.name], occ)
	}

	var changes []types.FieldChange
	for _, name := range order {
		removed := removedByName[name]
		added := addedByName[name]
		n := len(removed)
		if len(added) < n {
			n = len(added)
		}
		for i := 0; i < n; i++ {
			oldTS := nearestTimestamp(removedSync, removed[i].index)
			newTS := nearestTimestamp(addedSync, added[i].index)
			source := types.ChangeSourceUser
			if oldTS != newTS {
				// An automated sync pass always bumps the sentinel; a moved
				// timestamp means the remote touched this region.
				source = types.ChangeSourceRemote
			}
			changes = append(changes, types.FieldChange{
				Field:        name,
				OldValue:     removed[i].value,
				NewValue:     added[i].value,
				OldTimestamp: oldTS,
				NewTimestamp: newTS,
				Source:       source,
			})
		}
	}
	return changes
}

// nearestTimestamp returns the Last Synced value closest to index, or empty
// when the hunk carries no sentinel at all. Absent markers on both sides
// compare equal, which degrades to the conservative user-edit default.
func nearestTimestamp(sync []fieldOccurrence, index int) string {
	best := ""
	bestDist := -1
	for _, occ := range sync {
		dist := occ.index - index
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = occ.value
		}
	}
	return best
}
