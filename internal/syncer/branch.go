package syncer

import "strings"

// TrackingBranch names the branch mirroring remote state for one
// (release, team) pair: TP-<RELEASE>-<team>. The release segment is uppercase
// with slashes mapped to hyphens, the team segment lowercase with spaces
// mapped to hyphens; anything outside the segment's charset is stripped.
func TrackingBranch(release, team string) string {
	return "TP-" + normalizeRelease(release) + "-" + normalizeTeam(team)
}

// FeatureBranch names the branch where a user accumulates plan edits for a
// release: feature/plan-<release>.
func FeatureBranch(release string) string {
	return "feature/plan-" + normalizeFeatureRelease(release)
}

func normalizeRelease(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "/", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeTeam(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	return stripLower(s)
}

func normalizeFeatureRelease(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return stripLower(s)
}

func stripLower(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
