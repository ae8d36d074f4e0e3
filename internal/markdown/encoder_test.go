package markdown

import (
	"strings"
	"testing"
	"time"

	"github.com/clintrovert/tpsync/pkg/types"
)

func fixedClock() time.Time {
	return time.Date(2025, 12, 1, 10, 30, 0, 0, time.UTC)
}

func sampleDoc() Document {
	eight := 8
	return Document{
		Release: "2025.1",
		Team:    "Platform",
		ART:     "Alpha",
		Objectives: []types.Objective{
			{
				ID:          302,
				Name:        "Observability rollout",
				Status:      "In Progress",
				Effort:      21,
				Owner:       "Dana",
				Description: "Tracing for all services",
				Epics: []types.Epic{
					{ID: 4102, Name: "Collector setup", Status: "Done", Effort: &eight},
					{ID: 4088, Name: "Dashboards", Status: "To Do"},
				},
			},
			{ID: 301, Name: "Zero-downtime deploys", Status: "To Do", Effort: 0},
		},
	}
}

func TestEncode_ObjectivesSortedByID(t *testing.T) {
	out := NewEncoder(fixedClock).Encode(sampleDoc())

	first := strings.Index(out, "## Team Objective: Zero-downtime deploys")
	second := strings.Index(out, "## Team Objective: Observability rollout")
	if first == -1 || second == -1 {
		t.Fatalf("missing objective sections in output:\n%s", out)
	}
	if first > second {
		t.Error("objective with lower ID should render first")
	}
}

func TestEncode_EpicsSortedByID(t *testing.T) {
	out := NewEncoder(fixedClock).Encode(sampleDoc())

	first := strings.Index(out, "### Epic: Dashboards")
	second := strings.Index(out, "### Epic: Collector setup")
	if first == -1 || second == -1 {
		t.Fatalf("missing epic sections in output:\n%s", out)
	}
	if first > second {
		t.Error("epic with lower ID should render first")
	}
}

func TestEncode_ZeroEffortRendered(t *testing.T) {
	out := NewEncoder(fixedClock).Encode(sampleDoc())
	if !strings.Contains(out, "**Effort**: 0 points") {
		t.Errorf("zero effort must render as '**Effort**: 0 points':\n%s", out)
	}
}

func TestEncode_OmitsMissingOptionalFields(t *testing.T) {
	doc := Document{
		Release: "2025.1",
		Team:    "Platform",
		ART:     "Alpha",
		Objectives: []types.Objective{
			{ID: 1, Name: "Bare", Status: "To Do", Effort: 3,
				Epics: []types.Epic{{ID: 2, Name: "No estimate", Status: "To Do"}}},
		},
	}
	out := NewEncoder(fixedClock).Encode(doc)

	if strings.Contains(out, "**Owner**:") {
		t.Error("empty owner should be omitted, not rendered")
	}
	epicSection := out[strings.Index(out, "### Epic: No estimate"):]
	if strings.Contains(epicSection, "**Effort**:") {
		t.Error("epic without estimate should omit the effort line")
	}
	if !strings.Contains(out, "### Description") {
		t.Error("description section must be present even when empty")
	}
}

func TestEncode_Idempotent(t *testing.T) {
	enc := NewEncoder(fixedClock)
	a := enc.Encode(sampleDoc())
	b := enc.Encode(sampleDoc())
	if a != b {
		t.Error("encoding the same input with the same clock must be deterministic")
	}
}

func TestEncode_StripsHTML(t *testing.T) {
	doc := Document{
		Release: "2025.1",
		Team:    "Platform",
		Objectives: []types.Objective{
			{ID: 1, Name: "Rich text", Status: "To Do",
				Description: "<p>Keep &amp; simplify</p>"},
		},
	}
	out := NewEncoder(fixedClock).Encode(doc)
	if strings.Contains(out, "<p>") {
		t.Errorf("HTML tags leaked into markdown:\n%s", out)
	}
	if !strings.Contains(out, "Keep & simplify") {
		t.Errorf("entities should decode to literal text:\n%s", out)
	}
}

func TestEncode_TitleAndFrontmatter(t *testing.T) {
	out := NewEncoder(fixedClock).Encode(sampleDoc())

	if !strings.HasPrefix(out, "---\n") {
		t.Error("document must start with a frontmatter delimiter")
	}
	for _, want := range []string{
		`release: "2025.1"`,
		`team: "Platform"`,
		`art: "Alpha"`,
		"# PI-2025.1 Plan - Platform",
		"**Last Synced**: 2025-12-01T10:30:00+00:00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRoundTrip_Manifest(t *testing.T) {
	doc := sampleDoc()
	out := NewEncoder(fixedClock).Encode(doc)

	fm, err := ParseFrontmatter(out)
	if err != nil {
		t.Fatalf("ParseFrontmatter: %v", err)
	}
	if len(fm.Manifest) != len(doc.Objectives) {
		t.Fatalf("manifest has %d entries, want %d", len(fm.Manifest), len(doc.Objectives))
	}
	want := map[int]string{301: "Zero-downtime deploys", 302: "Observability rollout"}
	for _, entry := range fm.Manifest {
		if want[entry.ID] != entry.Name {
			t.Errorf("manifest entry %d = %q, want %q", entry.ID, entry.Name, want[entry.ID])
		}
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		team, release, want string
	}{
		{"Platform", "2025.1", "2025.1-platform.md"},
		{"Team Rocket (Core)", "PI/2025.1", "pi-2025.1-team-rocket-core.md"},
		{"Ops & SRE", "R1", "r1-ops--sre.md"},
	}
	for _, tt := range tests {
		got := Filename(tt.team, tt.release)
		if got != tt.want {
			t.Errorf("Filename(%q, %q) = %q, want %q", tt.team, tt.release, got, tt.want)
		}
		for _, r := range got {
			ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '.'
			if !ok {
				t.Errorf("Filename(%q, %q) contains forbidden character %q", tt.team, tt.release, r)
			}
		}
	}
}
