// Package gitops wraps the version-control primitives the sync engine needs:
// checkout, branch creation, commit, push, diff, rebase, and current-branch
// lookup on a local working tree.
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// RebaseConflictError reports a rebase stopped on conflicts. The repository is
// left in the native conflict state so the user can inspect and resolve it
// with standard tooling.
type RebaseConflictError struct {
	Files  []string
	Stderr string
}

func (e *RebaseConflictError) Error() string {
	return fmt.Sprintf("rebase stopped on conflicts in %s", strings.Join(e.Files, ", "))
}

// Repository operates on one local working tree. Branch checkout mutates
// global repository state, so no two Repository instances should share a path.
type Repository struct {
	path   string
	repo   *git.Repository
	logger *zap.Logger
}

// Open opens an existing git repository at path.
func Open(path string, logger *zap.Logger) (*Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return &Repository{path: path, repo: repo, logger: logger}, nil
}

// Root returns the working-tree path.
func (r *Repository) Root() string {
	return r.path
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s", head.Hash())
	}
	return head.Name().Short(), nil
}

// Checkout switches the working tree to an existing branch.
func (r *Repository) Checkout(branch string) error {
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	err = w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
	})
	if err != nil {
		return fmt.Errorf("failed to checkout %s: %w", branch, err)
	}
	return nil
}

// CreateBranch creates a branch at the current HEAD and checks it out.
func (r *Repository) CreateBranch(branch string) error {
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	err = w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}

	r.logger.Info("created branch",
		zap.String("branch", branch),
		zap.String("repo_path", r.path),
	)
	return nil
}

// Commit stages the given paths and commits them. Empty commits are allowed
// so a re-sync that produced identical content still records a sync point.
func (r *Repository) Commit(message string, paths ...string) error {
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, p := range paths {
		if _, err := w.Add(p); err != nil {
			return fmt.Errorf("failed to stage %s: %w", p, err)
		}
	}
	_, err = w.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  "tpsync",
			Email: "tpsync@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	r.logger.Info("committed changes",
		zap.String("message", message),
		zap.Strings("paths", paths),
	)
	return nil
}

// Push pushes a branch to origin. An already-up-to-date remote is a success.
func (r *Repository) Push(ctx context.Context, branch string) error {
	remote, err := r.repo.Remote("origin")
	if err != nil {
		return fmt.Errorf("failed to get remote: %w", err)
	}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = remote.PushContext(ctx, &git.PushOptions{
		RefSpecs: []gitconfig.RefSpec{refSpec},
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("failed to push %s: %w", branch, err)
	}

	r.logger.Info("pushed branch", zap.String("branch", branch))
	return nil
}

// DiffNameOnly lists the paths that differ between two branch tips.
func (r *Repository) DiffNameOnly(base, target string) ([]string, error) {
	changes, err := r.treeDiff(base, target)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// DiffContent renders the unified diff between two branch tips.
func (r *Repository) DiffContent(base, target string) (string, error) {
	changes, err := r.treeDiff(base, target)
	if err != nil {
		return "", err
	}
	patch, err := changes.Patch()
	if err != nil {
		return "", fmt.Errorf("failed to render patch: %w", err)
	}
	return patch.String(), nil
}

// ReadFileAt returns a file's content at a branch tip without checking the
// branch out.
func (r *Repository) ReadFileAt(branch, path string) ([]byte, error) {
	commit, err := r.branchCommit(branch)
	if err != nil {
		return nil, err
	}
	f, err := commit.File(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s at %s: %w", path, branch, err)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s at %s: %w", path, branch, err)
	}
	return []byte(content), nil
}

// Rebase rebases the current branch onto the given branch. go-git has no
// rebase support, so this shells out to the git binary with stderr captured.
// A conflict stop is reported as *RebaseConflictError with every conflicting
// file enumerated.
func (r *Repository) Rebase(ctx context.Context, onto string) error {
	cmd := exec.CommandContext(ctx, "git", "rebase", onto)
	cmd.Dir = r.path
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		files, cerr := r.conflictingFiles(ctx)
		if cerr == nil && len(files) > 0 {
			return &RebaseConflictError{Files: files, Stderr: stderr.String()}
		}
		return fmt.Errorf("git rebase %s: %w: %s", onto, err, strings.TrimSpace(stderr.String()))
	}

	r.logger.Info("rebased current branch", zap.String("onto", onto))
	return nil
}

// conflictingFiles lists unmerged paths while a rebase or merge is stopped.
func (r *Repository) conflictingFiles(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "--diff-filter=U")
	cmd.Dir = r.path
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git diff --diff-filter=U: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (r *Repository) branchCommit(branch string) (*object.Commit, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve branch %s: %w", branch, err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", ref.Hash(), err)
	}
	return commit, nil
}

func (r *Repository) treeDiff(base, target string) (object.Changes, error) {
	baseCommit, err := r.branchCommit(base)
	if err != nil {
		return nil, err
	}
	targetCommit, err := r.branchCommit(target)
	if err != nil {
		return nil, err
	}
	baseTree, err := baseCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree for %s: %w", base, err)
	}
	targetTree, err := targetCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree for %s: %w", target, err)
	}
	changes, err := object.DiffTree(baseTree, targetTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", base, target, err)
	}
	return changes, nil
}
