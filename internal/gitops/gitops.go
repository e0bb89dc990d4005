// Package gitops keeps an optional git history of a workspace. Each command
// that changes the data files is recorded as one commit.
package gitops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Author identifies who a history commit is recorded for.
type Author struct {
	Name  string
	Email string
}

func (a Author) String() string {
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Repo is a workspace directory tracked by git.
type Repo struct {
	Dir string
}

// Init initializes a new git repository at dir.
func Init(ctx context.Context, dir string) (Repo, error) {
	if _, err := run(ctx, dir, "init", "--quiet"); err != nil {
		return Repo{}, err
	}
	return Repo{Dir: dir}, nil
}

// Open returns the repository at dir, if dir has one.
func Open(dir string) (Repo, bool) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return Repo{}, false
	}
	return Repo{Dir: dir}, true
}

// Dirty reports whether the working tree has uncommitted changes.
func (r Repo) Dirty(ctx context.Context) (bool, error) {
	out, err := run(ctx, r.Dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitAll stages all files and creates a commit. Returns the short commit hash.
// The author is also used as committer so no global git identity is needed.
func (r Repo) CommitAll(ctx context.Context, message string, author Author) (string, error) {
	if _, err := run(ctx, r.Dir, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := run(ctx, r.Dir,
		"-c", "user.name="+author.Name, "-c", "user.email="+author.Email,
		"commit", "--quiet", "-m", message, "--author", author.String()); err != nil {
		return "", err
	}
	out, err := run(ctx, r.Dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Record commits pending changes, if any. It returns an empty hash when the
// tree was clean.
func (r Repo) Record(ctx context.Context, message string, author Author) (string, error) {
	dirty, err := r.Dirty(ctx)
	if err != nil || !dirty {
		return "", err
	}
	return r.CommitAll(ctx, message, author)
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", gitVerb(args), strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// gitVerb returns the subcommand of args, skipping -c options.
func gitVerb(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}
