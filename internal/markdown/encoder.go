package markdown

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clintrovert/tpsync/pkg/types"
)

// Document is the input to Encode: one plan file for a (release, team) pair.
type Document struct {
	Release           string
	Team              string
	ART               string
	Objectives        []types.Objective
	ProgramObjectives []types.ProgramObjective
}

// ManifestEntry is one item of the frontmatter `objectives` sequence. Entries
// are compact JSON embedded in the YAML header so the attribution engine can
// read them line by line without a YAML parser.
type ManifestEntry struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	SyncedAt string `json:"synced_at"`
}

// Frontmatter is the parsed metadata header of a plan document.
type Frontmatter struct {
	Release    string
	Team       string
	ART        string
	ExportedAt string
	Manifest   []ManifestEntry
}

// Encoder renders plan documents. The clock is injected so exported_at and
// synced_at are deterministic under test.
type Encoder struct {
	now func() time.Time
}

// NewEncoder creates an encoder; a nil clock defaults to time.Now.
func NewEncoder(now func() time.Time) *Encoder {
	if now == nil {
		now = time.Now
	}
	return &Encoder{now: now}
}

// Encode renders the document as markdown with a frontmatter header.
// Objectives are sorted by ID ascending, epics by ID ascending within their
// objective. Missing optional fields are omitted rather than rendered empty.
// The H1 title carries the raw release and team strings; only filenames and
// branch names use the normalized forms.
func (e *Encoder) Encode(doc Document) string {
	ts := isoUTC(e.now())

	objectives := make([]types.Objective, len(doc.Objectives))
	copy(objectives, doc.Objectives)
	sort.Slice(objectives, func(i, j int) bool { return objectives[i].ID < objectives[j].ID })

	var sb strings.Builder

	sb.WriteString("---\n")
	sb.WriteString("release: " + strconv.Quote(doc.Release) + "\n")
	sb.WriteString("team: " + strconv.Quote(doc.Team) + "\n")
	sb.WriteString("art: " + strconv.Quote(doc.ART) + "\n")
	sb.WriteString("exported_at: " + strconv.Quote(ts) + "\n")
	sb.WriteString("objectives:\n")
	for _, o := range objectives {
		entry, _ := json.Marshal(ManifestEntry{ID: o.ID, Name: o.Name, SyncedAt: ts})
		sb.WriteString("  - " + string(entry) + "\n")
	}
	sb.WriteString("---\n\n")

	sb.WriteString("# PI-" + doc.Release + " Plan - " + doc.Team + "\n")

	for _, o := range objectives {
		sb.WriteString("\n## Team Objective: " + o.Name + "\n\n")
		sb.WriteString("**TP ID**: " + strconv.Itoa(o.ID) + "\n")
		sb.WriteString("**Status**: " + o.Status + "\n")
		sb.WriteString(fmt.Sprintf("**Effort**: %d points\n", o.Effort))
		if o.Owner != "" {
			sb.WriteString("**Owner**: " + o.Owner + "\n")
		}
		sb.WriteString("**Last Synced**: " + ts + "\n")

		sb.WriteString("\n### Description\n\n")
		if o.Description != "" {
			sb.WriteString(stripHTML(o.Description) + "\n")
		}

		epics := make([]types.Epic, len(o.Epics))
		copy(epics, o.Epics)
		sort.Slice(epics, func(i, j int) bool { return epics[i].ID < epics[j].ID })

		for _, ep := range epics {
			sb.WriteString("\n### Epic: " + ep.Name + "\n\n")
			sb.WriteString("**TP ID**: " + strconv.Itoa(ep.ID) + "\n")
			sb.WriteString("**Status**: " + ep.Status + "\n")
			if ep.Effort != nil {
				sb.WriteString(fmt.Sprintf("**Effort**: %d points\n", *ep.Effort))
			}
			if ep.Owner != "" {
				sb.WriteString("**Owner**: " + ep.Owner + "\n")
			}
			sb.WriteString("**Last Synced**: " + ts + "\n")
		}
	}

	if len(doc.ProgramObjectives) > 0 {
		sb.WriteString("\n## Program Objectives (Reference)\n\n")
		for _, p := range doc.ProgramObjectives {
			sb.WriteString(fmt.Sprintf("- [%d] %s (%s)\n", p.ID, p.Name, p.Status))
		}
	}

	return sb.String()
}

// Filename derives the plan file name for a (team, release) pair: lowercase,
// hyphen separated, no characters outside [a-z0-9-.], no path separators.
func Filename(team, release string) string {
	return slug(release) + "-" + slug(team) + ".md"
}

func slug(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes markup that remote rich-text fields carry so it cannot
// leak into the markdown body. Tags are stripped before entities are decoded,
// so an escaped "&lt;b&gt;" survives as literal text.
func stripHTML(s string) string {
	s = htmlTag.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

// isoUTC renders a timestamp in the ISO-8601 form the documents use,
// always with an explicit +00:00 offset.
func isoUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05") + "+00:00"
}
