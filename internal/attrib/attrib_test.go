package attrib

import (
	"reflect"
	"testing"

	"github.com/clintrovert/tpsync/pkg/types"
)

const userEditHunk = `@@ -10,4 +10,4 @@
 **TP ID**: 302
 **Status**: In Progress
-**Effort**: 21 points
+**Effort**: 34 points
 **Last Synced**: 2025-12-01T10:30:00+00:00
`

const remoteUpdateHunk = `@@ -30,4 +30,4 @@
 **TP ID**: 301
-**Status**: To Do
+**Status**: In Progress
 **Effort**: 8 points
-**Last Synced**: 2025-12-01T10:30:00+00:00
+**Last Synced**: 2025-12-01T11:00:00+00:00
`

func TestChanges_UserEdit(t *testing.T) {
	changes := Changes(userEditHunk)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1: %+v", len(changes), changes)
	}
	c := changes[0]
	if c.Field != "Effort" || c.OldValue != "21 points" || c.NewValue != "34 points" {
		t.Errorf("change = %+v", c)
	}
	if c.Source != types.ChangeSourceUser {
		t.Errorf("unchanged Last Synced must classify as user edit, got %s", c.Source)
	}
}

func TestChanges_RemoteUpdate(t *testing.T) {
	changes := Changes(remoteUpdateHunk)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1: %+v", len(changes), changes)
	}
	c := changes[0]
	if c.Field != "Status" || c.OldValue != "To Do" || c.NewValue != "In Progress" {
		t.Errorf("change = %+v", c)
	}
	if c.Source != types.ChangeSourceRemote {
		t.Errorf("moved Last Synced must classify as remote update, got %s", c.Source)
	}
	if c.OldTimestamp != "2025-12-01T10:30:00+00:00" || c.NewTimestamp != "2025-12-01T11:00:00+00:00" {
		t.Errorf("timestamps = %q -> %q", c.OldTimestamp, c.NewTimestamp)
	}
}

func TestChanges_NoTimestampDefaultsToUserEdit(t *testing.T) {
	diff := `@@ -1,2 +1,2 @@
-**Owner**: Alice
+**Owner**: Bob
`
	changes := Changes(diff)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if changes[0].Source != types.ChangeSourceUser {
		t.Errorf("absent sync markers must degrade to user edit, got %s", changes[0].Source)
	}
	if changes[0].OldTimestamp != "" || changes[0].NewTimestamp != "" {
		t.Errorf("timestamps should be empty, got %q / %q", changes[0].OldTimestamp, changes[0].NewTimestamp)
	}
}

func TestChanges_MalformedDiff(t *testing.T) {
	for name, diff := range map[string]string{
		"empty":       "",
		"no hunks":    "**Effort**: 21 points\njust prose\n",
		"header only": "--- a/plan.md\n+++ b/plan.md\n",
	} {
		t.Run(name, func(t *testing.T) {
			if changes := Changes(diff); len(changes) != 0 {
				t.Errorf("got %d changes, want 0", len(changes))
			}
		})
	}
}

func TestConflictDetection(t *testing.T) {
	changes := Changes(userEditHunk + remoteUpdateHunk)
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(changes), changes)
	}
	if !HasConflict(changes) {
		t.Fatal("one user edit plus one remote update must flag a conflict")
	}

	fields := ConflictingFields(changes)
	if !reflect.DeepEqual(fields, []string{"Effort", "Status"}) {
		t.Errorf("conflicting fields = %v, want [Effort Status]", fields)
	}
}

func TestNoConflictWhenSingleSource(t *testing.T) {
	if HasConflict(Changes(userEditHunk)) {
		t.Error("a lone user edit is not a conflict")
	}
	if HasConflict(Changes(remoteUpdateHunk)) {
		t.Error("a lone remote update is not a conflict")
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(Changes(userEditHunk + remoteUpdateHunk))
	if s.Total != 2 || s.UserEdits != 1 || s.RemoteUpdates != 1 {
		t.Errorf("summary counts = %+v", s)
	}
	if !s.HasConflict {
		t.Error("summary must flag the conflict")
	}
	if !reflect.DeepEqual(s.ConflictingFields, []string{"Effort", "Status"}) {
		t.Errorf("summary fields = %v", s.ConflictingFields)
	}
}

func TestChanges_PairsRepeatedFieldsInOrder(t *testing.T) {
	// Two sections changed the same field inside one hunk; occurrences pair
	// positionally, first removed with first added.
	diff := `@@ -1,6 +1,6 @@
-**Effort**: 5 points
+**Effort**: 8 points
 some text
-**Effort**: 13 points
+**Effort**: 21 points
`
	changes := Changes(diff)
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(changes), changes)
	}
	if changes[0].OldValue != "5 points" || changes[0].NewValue != "8 points" {
		t.Errorf("first pair = %q -> %q", changes[0].OldValue, changes[0].NewValue)
	}
	if changes[1].OldValue != "13 points" || changes[1].NewValue != "21 points" {
		t.Errorf("second pair = %q -> %q", changes[1].OldValue, changes[1].NewValue)
	}
	for _, c := range changes {
		if c.Source != types.ChangeSourceUser {
			t.Errorf("no sentinel in hunk: %s should be user_edit", c.Field)
		}
	}
}
