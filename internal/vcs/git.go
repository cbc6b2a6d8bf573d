package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
)

// Client performs git operations against the exercise repositories of the
// target platform, authenticated over HTTP with the student's credentials.
type Client struct {
	log *slog.Logger
}

// New builds a VCS client.
func New(logger *slog.Logger) *Client {
	return &Client{log: logger}
}

// Clone checks out repoURL into dir. An existing directory is removed
// first so repeated runs start from a clean tree.
func (c *Client) Clone(ctx context.Context, repoURL, dir string, creds domain.Credentials) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clean working dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("create working dir: %w", err)
	}

	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  repoURL,
		Auth: basicAuth(creds),
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", repoURL, err)
	}
	return nil
}

// CommitAndPush modifies a tracked file, commits, and pushes. The change
// is an appended line so successive commits never conflict.
func (c *Client) CommitAndPush(ctx context.Context, dir, message string, creds domain.Credentials) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	tree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	if err := appendChange(dir); err != nil {
		return err
	}
	if _, err := tree.Add("."); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	_, err = tree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  creds.Username,
			Email: creds.Username + "@benchmark.invalid",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	err = repo.PushContext(ctx, &git.PushOptions{Auth: basicAuth(creds)})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

func appendChange(dir string) error {
	path := filepath.Join(dir, "attempt.txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tracked file: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "attempt at %s\n", time.Now().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("write tracked file: %w", err)
	}
	return nil
}

func basicAuth(creds domain.Credentials) *http.BasicAuth {
	return &http.BasicAuth{Username: creds.Username, Password: creds.Password}
}
