package syncer

import (
	"strings"
	"testing"
)

func TestTrackingBranch(t *testing.T) {
	tests := []struct {
		release, team, want string
	}{
		{"2025.1", "Platform", "TP-20251-platform"},
		{"PI/2025.1", "Team Rocket", "TP-PI-20251-team-rocket"},
		{"R1 (draft)", "Ops & SRE", "TP-R1DRAFT-ops--sre"},
	}
	for _, tt := range tests {
		got := TrackingBranch(tt.release, tt.team)
		if got != tt.want {
			t.Errorf("TrackingBranch(%q, %q) = %q, want %q", tt.release, tt.team, got, tt.want)
		}
	}
}

func TestFeatureBranch(t *testing.T) {
	tests := []struct {
		release, want string
	}{
		{"2025.1", "feature/plan-20251"},
		{"PI/2025.1", "feature/plan-pi-20251"},
		{"R1 (draft)", "feature/plan-r1-draft"},
	}
	for _, tt := range tests {
		got := FeatureBranch(tt.release)
		if got != tt.want {
			t.Errorf("FeatureBranch(%q) = %q, want %q", tt.release, got, tt.want)
		}
	}
}

func TestBranchNameSafety(t *testing.T) {
	awkward := []struct{ release, team string }{
		{"PI 2025/1 (final)", "Team Rocket (Core)"},
		{"r/2", "a b c"},
		{"  ", "(parens)"},
	}
	for _, tt := range awkward {
		tracking := TrackingBranch(tt.release, tt.team)
		feature := FeatureBranch(tt.release)

		if !strings.HasPrefix(tracking, "TP-") {
			t.Errorf("tracking branch %q must start with TP-", tracking)
		}
		for _, name := range []string{tracking, feature} {
			if strings.ContainsAny(name, " ()") {
				t.Errorf("branch name %q contains forbidden characters", name)
			}
		}
		teamSegment := strings.TrimPrefix(tracking, "TP-")
		if strings.Contains(teamSegment, "/") {
			t.Errorf("tracking branch %q contains a slash outside the feature/ prefix", tracking)
		}
	}
}
