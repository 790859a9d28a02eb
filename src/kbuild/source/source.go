// Package source checks out the kernel tree with go-git.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bitswalk/kbuild/src/common/logs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the source package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// cloneFunc matches git.PlainCloneContext
type cloneFunc func(ctx context.Context, path string, isBare bool, o *git.CloneOptions) (*git.Repository, error)

// Cloner performs shallow, single-ref, recursive clones
type Cloner struct {
	progress io.Writer
	clone    cloneFunc
}

// NewCloner creates a cloner. progress receives the remote's sideband output, nil to discard it.
func NewCloner(progress io.Writer) *Cloner {
	return &Cloner{
		progress: progress,
		clone:    git.PlainCloneContext,
	}
}

// Result describes a finished checkout
type Result struct {
	Path      string
	Reference plumbing.ReferenceName
	Commit    string
}

// Clone checks out ref of url into dest with depth 1 and submodules initialised.
// ref is tried as a branch first and then as a tag. A failed attempt is cleaned
// up by go-git, which removes dest when it created it; Clone itself never
// deletes anything.
func (c *Cloner) Clone(ctx context.Context, url, ref, dest string) (*Result, error) {
	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewTagReferenceName(ref),
	}

	var lastErr error
	for i, name := range candidates {
		repo, err := c.clone(ctx, dest, false, cloneOptions(url, name, c.progress))
		if err == nil {
			return &Result{Path: dest, Reference: name, Commit: headCommit(repo)}, nil
		}
		lastErr = err

		if !isRefNotFound(err) || i == len(candidates)-1 {
			break
		}
		log.Debug("Reference not found, retrying", "ref", name, "next", candidates[i+1])
	}

	return nil, fmt.Errorf("failed to clone %s at %s: %w", url, ref, lastErr)
}

// cloneOptions are the equivalent of
// git clone --recurse-submodules --depth 1 --branch <ref> <url>
func cloneOptions(url string, ref plumbing.ReferenceName, progress io.Writer) *git.CloneOptions {
	return &git.CloneOptions{
		URL:               url,
		ReferenceName:     ref,
		SingleBranch:      true,
		Depth:             1,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		ShallowSubmodules: true,
		Progress:          progress,
	}
}

func isRefNotFound(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.Is(err, plumbing.ErrReferenceNotFound) || errors.As(err, &noMatch)
}

func headCommit(repo *git.Repository) string {
	if repo == nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}
