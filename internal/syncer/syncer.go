// Package syncer owns the tracking/feature branch lifecycle that keeps a git
// repository consistent with a remote planning system. The tracking branch
// mirrors remote state, the feature branch holds user edits, and after every
// successful pull the feature branch is rebased onto the tracking tip so
// history stays linear and diff-based attribution stays tractable.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/clintrovert/tpsync/internal/attrib"
	"github.com/clintrovert/tpsync/internal/gitops"
	"github.com/clintrovert/tpsync/internal/markdown"
	"github.com/clintrovert/tpsync/pkg/types"
)

// Git is the version-control primitive layer the engine mutates branch
// content through. Implementations operate on one working tree; branch
// checkout is a global mutation, so one engine instance per repository path.
type Git interface {
	CurrentBranch() (string, error)
	Checkout(branch string) error
	CreateBranch(branch string) error
	Commit(message string, paths ...string) error
	Push(ctx context.Context, branch string) error
	DiffNameOnly(base, target string) ([]string, error)
	DiffContent(base, target string) (string, error)
	ReadFileAt(branch, path string) ([]byte, error)
	Rebase(ctx context.Context, onto string) error
	Root() string
}

// APIClient executes one remote create/update call. Retry for transient
// failures is the client's responsibility; the engine treats each call as
// all-or-nothing.
type APIClient interface {
	Execute(ctx context.Context, call types.APICall) error
}

// Error reports invalid input to the engine. Operational failures never use
// it; they surface through SyncResult.
type Error struct {
	Op     string
	Reason string
}

func (e *Error) Error() string {
	return "syncer: " + e.Op + ": " + e.Reason
}

// PlanSync synchronizes plan documents between the remote system and a local
// git repository. Operations are synchronous and blocking; collaborator
// failures convert to a failed SyncResult at the operation boundary.
type PlanSync struct {
	git     Git
	encoder *markdown.Encoder
	logger  *zap.Logger
}

// New creates a sync engine. A nil encoder defaults to wall-clock timestamps.
func New(git Git, encoder *markdown.Encoder, logger *zap.Logger) *PlanSync {
	if encoder == nil {
		encoder = markdown.NewEncoder(nil)
	}
	return &PlanSync{git: git, encoder: encoder, logger: logger}
}

// Init creates the tracking branch from the current HEAD, commits and pushes
// the initial plan document, then creates and checks out the feature branch
// from the tracking tip.
func (s *PlanSync) Init(ctx context.Context, doc markdown.Document) (*types.SyncResult, error) {
	if err := validate("init", doc.Team, doc.Release); err != nil {
		return nil, err
	}
	tracking := TrackingBranch(doc.Release, doc.Team)
	feature := FeatureBranch(doc.Release)
	filename := markdown.Filename(doc.Team, doc.Release)

	if err := s.git.CreateBranch(tracking); err != nil {
		return fail("failed to create tracking branch %s: %v", tracking, err), nil
	}
	message := fmt.Sprintf("Initial PI plan for %s %s", doc.Team, doc.Release)
	if err := s.writeAndCommit(filename, s.encoder.Encode(doc), message); err != nil {
		return fail("failed to commit initial plan: %v", err), nil
	}
	if err := s.git.Push(ctx, tracking); err != nil {
		return fail("failed to push tracking branch %s: %v", tracking, err), nil
	}
	if err := s.git.CreateBranch(feature); err != nil {
		return fail("failed to create feature branch %s: %v", feature, err), nil
	}

	s.logger.Info("initialized plan branches",
		zap.String("tracking_branch", tracking),
		zap.String("feature_branch", feature),
		zap.String("file", filename),
	)
	return &types.SyncResult{
		Success: true,
		Message: fmt.Sprintf("Created tracking branch %s and feature branch %s", tracking, feature),
	}, nil
}

// Pull commits freshly supplied remote data to the tracking branch, pushes
// it, then rebases the previously checked-out branch onto the tracking tip.
// A rebase stop is not resolved automatically: the result lists the
// conflicting files and the repository stays in the native conflict state.
func (s *PlanSync) Pull(ctx context.Context, doc markdown.Document) (*types.SyncResult, error) {
	if err := validate("pull", doc.Team, doc.Release); err != nil {
		return nil, err
	}
	tracking := TrackingBranch(doc.Release, doc.Team)
	filename := markdown.Filename(doc.Team, doc.Release)

	prev, err := s.git.CurrentBranch()
	if err != nil {
		return fail("failed to resolve current branch: %v", err), nil
	}
	content := s.encoder.Encode(doc)

	if err := s.git.Checkout(tracking); err != nil {
		return fail("failed to checkout tracking branch %s: %v", tracking, err), nil
	}
	message := fmt.Sprintf("Sync from TargetProcess for %s %s", doc.Team, doc.Release)
	if err := s.writeAndCommit(filename, content, message); err != nil {
		return fail("failed to commit remote plan: %v", err), nil
	}
	if err := s.git.Push(ctx, tracking); err != nil {
		return fail("failed to push tracking branch %s: %v", tracking, err), nil
	}
	if err := s.git.Checkout(prev); err != nil {
		return fail("failed to checkout %s: %v", prev, err), nil
	}

	if err := s.git.Rebase(ctx, tracking); err != nil {
		var conflict *gitops.RebaseConflictError
		if errors.As(err, &conflict) {
			files := conflict.Files
			if len(files) == 0 {
				files = []string{filename}
			}
			s.logger.Warn("rebase stopped on conflicts",
				zap.String("branch", prev),
				zap.Strings("files", files),
			)
			message := fmt.Sprintf(
				"Rebase of %s onto %s stopped on conflicts; resolve them and run 'git rebase --continue'",
				prev, tracking)
			message += s.attributeConflict(tracking, prev)
			return &types.SyncResult{
				Success:   false,
				Conflicts: files,
				Message:   message,
			}, nil
		}
		return fail("failed to rebase %s onto %s: %v", prev, tracking, err), nil
	}

	s.logger.Info("pulled remote plan",
		zap.String("tracking_branch", tracking),
		zap.String("rebased_branch", prev),
	)
	return &types.SyncResult{
		Success: true,
		Message: fmt.Sprintf("Pulled remote plan into %s; rebased %s onto it", tracking, prev),
	}, nil
}

// Push diffs the current branch against the tracking branch, derives one
// create/update call per new or modified objective and epic, executes each
// against the API client, then records the pushed state on the tracking
// branch. Objectives removed locally are reported, never deleted remotely.
func (s *PlanSync) Push(ctx context.Context, team, release string, api APIClient) (*types.SyncResult, error) {
	if err := validate("push", team, release); err != nil {
		return nil, err
	}
	if api == nil {
		return nil, &Error{Op: "push", Reason: "api client is required"}
	}
	tracking := TrackingBranch(release, team)

	current, err := s.git.CurrentBranch()
	if err != nil {
		return fail("failed to resolve current branch: %v", err), nil
	}
	changed, err := s.git.DiffNameOnly(tracking, current)
	if err != nil {
		return fail("failed to diff %s against %s: %v", current, tracking, err), nil
	}
	var files []string
	for _, f := range changed {
		if strings.HasSuffix(f, ".md") {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return &types.SyncResult{
			Success:  true,
			Message:  "No local changes to push",
			APICalls: []types.APICall{},
		}, nil
	}

	var calls []types.APICall
	var removed []string
	contents := make(map[string][]byte, len(files))

	for _, f := range files {
		newContent, err := s.git.ReadFileAt(current, f)
		if err != nil {
			// The file exists on tracking but not here: deleted on the
			// feature branch. Report its objectives, never delete remotely.
			oldContent, oerr := s.git.ReadFileAt(tracking, f)
			if oerr != nil {
				return fail("failed to read %s at %s: %v", f, current, err), nil
			}
			oldObjs, _ := markdown.ParseObjectives(string(oldContent))
			for _, o := range oldObjs {
				removed = append(removed, o.Name)
			}
			continue
		}
		contents[f] = newContent
		newObjs, err := markdown.ParseObjectives(string(newContent))
		if err != nil {
			return fail("failed to parse %s: %v", f, err), nil
		}
		// A file created on the feature branch has no tracking-side version.
		var oldObjs []types.Objective
		if oldContent, err := s.git.ReadFileAt(tracking, f); err == nil {
			oldObjs, _ = markdown.ParseObjectives(string(oldContent))
		}
		fileCalls, fileRemoved := deriveCalls(oldObjs, newObjs)
		calls = append(calls, fileCalls...)
		removed = append(removed, fileRemoved...)
	}

	for _, call := range calls {
		if err := api.Execute(ctx, call); err != nil {
			return fail("failed to execute %s %s: %v", call.Operation, call.Entity, err), nil
		}
	}

	if err := s.git.Checkout(tracking); err != nil {
		return fail("failed to checkout tracking branch %s: %v", tracking, err), nil
	}
	var recorded []string
	for _, f := range files {
		content, ok := contents[f]
		if !ok {
			continue
		}
		if err := os.WriteFile(filepath.Join(s.git.Root(), f), content, 0o644); err != nil {
			return fail("failed to write %s: %v", f, err), nil
		}
		recorded = append(recorded, f)
	}
	if err := s.git.Commit("Record pushed plan state", recorded...); err != nil {
		return fail("failed to record pushed state: %v", err), nil
	}
	if err := s.git.Push(ctx, tracking); err != nil {
		return fail("failed to push tracking branch %s: %v", tracking, err), nil
	}
	if err := s.git.Checkout(current); err != nil {
		return fail("failed to checkout %s: %v", current, err), nil
	}

	message := fmt.Sprintf("Pushed %d change(s) to TargetProcess", len(calls))
	if len(removed) > 0 {
		message += fmt.Sprintf("; removed locally but kept remotely: %s", strings.Join(removed, ", "))
	}
	s.logger.Info("pushed local plan changes",
		zap.String("branch", current),
		zap.Int("api_calls", len(calls)),
	)
	return &types.SyncResult{Success: true, Message: message, APICalls: calls}, nil
}

// attributeConflict classifies the divergence between the tracking tip and the
// stopped branch so the conflict message tells the user which side touched
// what. The classification is advisory; any failure to compute it yields an
// empty suffix, never a failed pull.
func (s *PlanSync) attributeConflict(tracking, branch string) string {
	diff, err := s.git.DiffContent(tracking, branch)
	if err != nil {
		s.logger.Warn("failed to diff for change attribution", zap.Error(err))
		return ""
	}
	summary := attrib.Summarize(attrib.Changes(diff))
	if summary.Total == 0 {
		return ""
	}
	msg := fmt.Sprintf(". Attribution: %d user edit(s), %d remote update(s)",
		summary.UserEdits, summary.RemoteUpdates)
	if len(summary.ConflictingFields) > 0 {
		msg += " touching " + strings.Join(summary.ConflictingFields, ", ")
	}
	return msg
}

func (s *PlanSync) writeAndCommit(filename, content, message string) error {
	path := filepath.Join(s.git.Root(), filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return s.git.Commit(message, filename)
}

func validate(op, team, release string) error {
	if strings.TrimSpace(team) == "" {
		return &Error{Op: op, Reason: "team name is required"}
	}
	if strings.TrimSpace(release) == "" {
		return &Error{Op: op, Reason: "release name is required"}
	}
	return nil
}

func fail(format string, args ...interface{}) *types.SyncResult {
	return &types.SyncResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// deriveCalls compares the tracking-side and current-side objectives of one
// plan file. Objectives without a TP ID become creates; modified ones become
// updates. An ID the tracking branch has never seen is treated as an update,
// since the remote may already know it. Removals are only reported back to
// the caller.
func deriveCalls(oldObjs, newObjs []types.Objective) ([]types.APICall, []string) {
	oldByID := make(map[int]types.Objective, len(oldObjs))
	for _, o := range oldObjs {
		if o.ID != 0 {
			oldByID[o.ID] = o
		}
	}

	var calls []types.APICall
	seen := make(map[int]bool)

	for _, obj := range newObjs {
		if obj.ID == 0 {
			calls = append(calls, types.APICall{
				Operation: "create",
				Entity:    "objective",
				Fields:    objectiveFields(obj),
			})
			calls = append(calls, epicCalls(types.Objective{}, obj)...)
			continue
		}
		seen[obj.ID] = true
		old, known := oldByID[obj.ID]
		if !known || !objectiveEqual(old, obj) {
			calls = append(calls, types.APICall{
				Operation: "update",
				Entity:    "objective",
				ID:        obj.ID,
				Fields:    objectiveFields(obj),
			})
		}
		calls = append(calls, epicCalls(old, obj)...)
	}

	var removed []string
	for _, o := range oldObjs {
		if o.ID != 0 && !seen[o.ID] {
			removed = append(removed, o.Name)
		}
	}
	return calls, removed
}

func epicCalls(old, current types.Objective) []types.APICall {
	oldByID := make(map[int]types.Epic, len(old.Epics))
	for _, e := range old.Epics {
		if e.ID != 0 {
			oldByID[e.ID] = e
		}
	}

	var calls []types.APICall
	for _, e := range current.Epics {
		if e.ID == 0 {
			calls = append(calls, types.APICall{
				Operation: "create",
				Entity:    "epic",
				Fields:    epicFields(e, current.ID),
			})
			continue
		}
		oldEpic, known := oldByID[e.ID]
		if !known || !epicEqual(oldEpic, e) {
			calls = append(calls, types.APICall{
				Operation: "update",
				Entity:    "epic",
				ID:        e.ID,
				Fields:    epicFields(e, current.ID),
			})
		}
	}
	return calls
}

func objectiveFields(o types.Objective) map[string]string {
	fields := map[string]string{
		"name":   o.Name,
		"status": o.Status,
		"effort": strconv.Itoa(o.Effort),
	}
	if o.Owner != "" {
		fields["owner"] = o.Owner
	}
	if o.Description != "" {
		fields["description"] = o.Description
	}
	return fields
}

func epicFields(e types.Epic, objectiveID int) map[string]string {
	fields := map[string]string{
		"name":   e.Name,
		"status": e.Status,
	}
	if e.Effort != nil {
		fields["effort"] = strconv.Itoa(*e.Effort)
	}
	if e.Owner != "" {
		fields["owner"] = e.Owner
	}
	if objectiveID != 0 {
		fields["objective_id"] = strconv.Itoa(objectiveID)
	}
	return fields
}

func objectiveEqual(a, b types.Objective) bool {
	return a.Name == b.Name &&
		a.Status == b.Status &&
		a.Effort == b.Effort &&
		a.Owner == b.Owner &&
		a.Description == b.Description
}

func epicEqual(a, b types.Epic) bool {
	if a.Name != b.Name || a.Status != b.Status || a.Owner != b.Owner {
		return false
	}
	if (a.Effort == nil) != (b.Effort == nil) {
		return false
	}
	return a.Effort == nil || *a.Effort == *b.Effort
}
