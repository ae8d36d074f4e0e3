package markdown

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/clintrovert/tpsync/pkg/types"
)

var fieldLine = regexp.MustCompile(`^\*\*([^*]+)\*\*:\s*(.*)$`)

// ParseFrontmatter reads the metadata header of a plan document. Manifest
// entries are decoded with encoding/json per line; the rest of the header is
// plain key/value scanning, so no YAML parser is involved.
func ParseFrontmatter(content string) (*Frontmatter, error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || lines[0] != "---" {
		return nil, fmt.Errorf("no frontmatter block at start of document")
	}

	fm := &Frontmatter{}
	inManifest := false
	closed := false

	for _, line := range lines[1:] {
		if line == "---" {
			closed = true
			break
		}
		if strings.HasPrefix(line, "  - ") {
			if !inManifest {
				continue
			}
			var entry ManifestEntry
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "  - ")), &entry); err != nil {
				return nil, fmt.Errorf("malformed manifest entry %q: %w", line, err)
			}
			fm.Manifest = append(fm.Manifest, entry)
			continue
		}

		inManifest = false
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
		switch key {
		case "release":
			fm.Release = value
		case "team":
			fm.Team = value
		case "art":
			fm.ART = value
		case "exported_at":
			fm.ExportedAt = value
		case "objectives":
			inManifest = true
		}
	}

	if !closed {
		return nil, fmt.Errorf("frontmatter block not terminated")
	}
	return fm, nil
}

// ParseObjectives parses the body sections of a plan document back into
// objective records, in document order. A section without a TP ID line parses
// with ID zero, which marks an objective the user added by hand.
func ParseObjectives(content string) ([]types.Objective, error) {
	body := content
	if fm := strings.Index(content, "\n---\n"); strings.HasPrefix(content, "---\n") && fm >= 0 {
		body = content[fm+len("\n---\n"):]
	}

	var (
		objectives []types.Objective
		current    *types.Objective
		epic       *types.Epic
		inDesc     bool
		desc       []string
	)

	flushEpic := func() {
		if current != nil && epic != nil {
			current.Epics = append(current.Epics, *epic)
		}
		epic = nil
	}
	flushObjective := func() {
		flushEpic()
		if current != nil {
			current.Description = strings.TrimSpace(strings.Join(desc, "\n"))
			objectives = append(objectives, *current)
		}
		current = nil
		desc = nil
	}

	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "## Team Objective: "):
			flushObjective()
			current = &types.Objective{Name: strings.TrimPrefix(line, "## Team Objective: ")}
			inDesc = false
		case strings.HasPrefix(line, "### Epic: "):
			flushEpic()
			inDesc = false
			if current != nil {
				epic = &types.Epic{Name: strings.TrimPrefix(line, "### Epic: ")}
			}
		case line == "### Description":
			flushEpic()
			inDesc = true
		case strings.HasPrefix(line, "#"):
			// Any other header ends the current objective section.
			flushObjective()
			inDesc = false
		default:
			if m := fieldLine.FindStringSubmatch(line); m != nil {
				inDesc = false
				applyField(current, epic, m[1], m[2])
				continue
			}
			if inDesc && current != nil {
				desc = append(desc, line)
			}
		}
	}
	flushObjective()

	return objectives, nil
}

func applyField(obj *types.Objective, epic *types.Epic, name, value string) {
	if epic != nil {
		switch name {
		case "TP ID":
			epic.ID, _ = strconv.Atoi(value)
		case "Status":
			epic.Status = value
		case "Owner":
			epic.Owner = value
		case "Effort":
			if n, ok := parseEffort(value); ok {
				epic.Effort = &n
			}
		}
		return
	}
	if obj == nil {
		return
	}
	switch name {
	case "TP ID":
		obj.ID, _ = strconv.Atoi(value)
	case "Status":
		obj.Status = value
	case "Owner":
		obj.Owner = value
	case "Effort":
		if n, ok := parseEffort(value); ok {
			obj.Effort = n
		}
	}
}

// parseEffort reads the leading integer of an "N points" value.
func parseEffort(value string) (int, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
