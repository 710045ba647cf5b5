// Package git wraps go-git for the repositories risset manages: the main
// index repository and the per-plugin repositories referenced by it, all
// cloned shallow under one clones directory. Clones are read-only, risset
// never commits to them.
package git

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/logfields"
)

// IsURL reports whether s is an http(s) url.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// IsGitURL reports whether s is an http(s) url to a git repository.
func IsGitURL(s string) bool {
	return IsURL(s) && strings.HasSuffix(s, ".git")
}

// RepoName extracts the repository name from a git url, e.g.
// "https://github.com/user/foo.git" yields "foo".
func RepoName(url string) (string, error) {
	if !strings.HasSuffix(url, ".git") {
		return "", errors.Newf(errors.KindInvalidArgument, "a git url should always end in '.git': %s", url)
	}
	last := url[strings.LastIndex(url, "/")+1:]
	return strings.TrimSuffix(last, ".git"), nil
}

// IsRepo reports whether path holds a git repository.
func IsRepo(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// Client manages the local clones of the repositories risset uses.
type Client struct {
	clonesDir string
}

// NewClient creates a client cloning under the given directory.
func NewClient(clonesDir string) *Client {
	return &Client{clonesDir: clonesDir}
}

// LocalPath returns where the given repository is (or would be) cloned.
func (c *Client) LocalPath(url string) (string, error) {
	name, err := RepoName(url)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.clonesDir, name), nil
}

// Ensure returns the local clone of the repository, cloning it shallow
// if absent. It never pulls an existing clone.
func (c *Client) Ensure(ctx context.Context, url string) (string, error) {
	dest, err := c.LocalPath(url)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err == nil {
		if !IsRepo(dest) {
			slog.Warn("clone destination exists but is not a git repository",
				logfields.Path(dest), logfields.URL(url))
		}
		return dest, nil
	}
	if err := Clone(ctx, url, dest, 1); err != nil {
		return "", err
	}
	return dest, nil
}

// Clone clones a repository. A depth > 0 makes the clone shallow. The
// destination must not exist.
func Clone(ctx context.Context, url, dest string, depth int) error {
	if _, err := os.Stat(dest); err == nil {
		return errors.Newf(errors.KindIO, "destination path %s already exists, can't clone", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not create parent of %s", dest)
	}
	slog.Debug("cloning repository", logfields.URL(url), logfields.Path(dest))
	opts := &gogit.CloneOptions{URL: url}
	if depth > 0 {
		opts.Depth = depth
	}
	if _, err := gogit.PlainCloneContext(ctx, dest, false, opts); err != nil {
		return errors.Wrapf(err, errors.KindNetwork, "failed to clone repository %s", url)
	}
	return nil
}

// Update brings an existing clone up to date with its remote: fetch,
// then reset the worktree to the remote branch head. Since risset never
// writes to its clones, the reset is equivalent to a pull and also
// recovers from force-pushed remotes.
func Update(ctx context.Context, path string) error {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not open repository at %s", path)
	}
	fetchOpts := &gogit.FetchOptions{
		RemoteName: "origin",
		Tags:       gogit.NoTags,
		RefSpecs:   []gitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	}
	if err := repo.FetchContext(ctx, fetchOpts); err != nil && !stderrors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return errors.Wrapf(err, errors.KindNetwork, "failed to fetch %s", path)
	}

	branch := currentBranch(repo)
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "no remote branch origin/%s in %s", branch, path)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "no worktree in %s", path)
	}
	if err := wt.Reset(&gogit.ResetOptions{Commit: remoteRef.Hash(), Mode: gogit.HardReset}); err != nil {
		return errors.Wrapf(err, errors.KindIO, "failed to update %s", path)
	}
	slog.Debug("repository updated",
		logfields.Path(path), slog.String("commit", remoteRef.Hash().String()[:8]))
	return nil
}

// currentBranch resolves the checked-out branch, the remote default
// branch, or "master" (the branch risset's index repository uses).
func currentBranch(repo *gogit.Repository) string {
	if headRef, err := repo.Head(); err == nil && headRef.Name().IsBranch() {
		return headRef.Name().Short()
	}
	if ref, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), true); err == nil {
		if target := ref.Target(); target != "" {
			return plumbing.ReferenceName(target).Short()
		}
	}
	return "master"
}

// Head returns the hash of the current head commit.
func Head(path string) (string, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindIO, "could not open repository at %s", path)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", errors.Wrapf(err, errors.KindInternal, "no head in %s", path)
	}
	return ref.Hash().String(), nil
}
