// Package sourcer performs remote reachability checks and source checkouts
// by shelling out to git.
package sourcer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/zulandar/roundhouse/internal/cierr"
)

// CloneSpec describes one checkout.
type CloneSpec struct {
	Name         string // owner/name, for error messages
	CloneURL     string
	Ref          string // full ref, e.g. refs/heads/main
	Commit       string // optional commit to check out, overrides Ref's tip
	IdentityFile string // optional private key path for SSH access
}

// Git runs git with bounded timeouts.
type Git struct {
	PingTimeout  time.Duration
	CloneTimeout time.Duration
}

// New returns a Git sourcer with the given timeouts.
func New(pingTimeout, cloneTimeout time.Duration) *Git {
	return &Git{PingTimeout: pingTimeout, CloneTimeout: cloneTimeout}
}

// Ping checks that the remote is reachable and listable. Read-only: nothing
// local is created or mutated.
func (g *Git) Ping(ctx context.Context, url, identityFile string) error {
	ctx, cancel := context.WithTimeout(ctx, g.PingTimeout)
	defer cancel()

	out, err := runGit(ctx, "", identityFile, "ls-remote", "--heads", url)
	if err != nil {
		return classify(out, err)
	}
	return nil
}

// Clone checks out the spec's ref into dir, which must not already exist.
// Failures are classified as network, auth or reference errors so the
// scheduler can pick a retry policy.
func (g *Git) Clone(ctx context.Context, spec CloneSpec, dir string) error {
	if spec.CloneURL == "" {
		return fmt.Errorf("sourcer: clone URL is required")
	}
	if dir == "" {
		return fmt.Errorf("sourcer: target directory is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.CloneTimeout)
	defer cancel()

	if out, err := runGit(ctx, "", spec.IdentityFile, "clone", spec.CloneURL, dir); err != nil {
		return classify(out, err)
	}

	target := spec.Commit
	if target == "" {
		target = ShortRef(spec.Ref)
	}
	if target == "" {
		return nil // remote default branch
	}
	if out, err := runGit(ctx, dir, spec.IdentityFile, "checkout", target); err != nil {
		if classified := classify(out, err); errors.Is(classified, cierr.ErrNetwork) {
			return classified
		}
		return fmt.Errorf("sourcer: ref %q for %s: %s: %w", spec.Ref, spec.Name, firstLine(out), cierr.ErrReference)
	}
	return nil
}

// ShortRef strips the refs/heads/ or refs/tags/ prefix so git checkout gets
// a name it resolves locally.
func ShortRef(ref string) string {
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix)
		}
	}
	return ref
}

// runGit executes a git subcommand, returning combined output. The
// environment disables interactive prompting; with an identity file, SSH is
// pinned to it in batch mode.
func runGit(ctx context.Context, dir, identityFile string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	env := append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if identityFile != "" {
		env = append(env, "GIT_SSH_COMMAND="+SSHCommand(identityFile))
	}
	cmd.Env = env

	out, err := cmd.CombinedOutput()
	return string(out), err
}

// SSHCommand builds the GIT_SSH_COMMAND value for a keypair clone.
func SSHCommand(identityFile string) string {
	return fmt.Sprintf("ssh -i %s -oBatchMode=yes -oStrictHostKeyChecking=accept-new", identityFile)
}

// classify maps git failure output onto the error taxonomy.
func classify(out string, err error) error {
	lower := strings.ToLower(out)
	line := firstLine(out)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return fmt.Errorf("sourcer: remote timed out: %w", cierr.ErrNetwork)
	case containsAny(lower,
		"could not resolve host",
		"connection refused",
		"connection timed out",
		"operation timed out",
		"network is unreachable",
		"unable to access",
		"early eof",
		"the remote end hung up"):
		return fmt.Errorf("sourcer: %s: %w", line, cierr.ErrNetwork)
	case containsAny(lower,
		"authentication failed",
		"permission denied",
		"access denied",
		"could not read username",
		"could not read password",
		"repository not found",
		"host key verification failed"):
		return fmt.Errorf("sourcer: %s: %w", line, cierr.ErrAuth)
	case containsAny(lower,
		"couldn't find remote ref",
		"not found in upstream",
		"did not match any file",
		"pathspec",
		"unknown revision"):
		return fmt.Errorf("sourcer: %s: %w", line, cierr.ErrReference)
	default:
		return fmt.Errorf("sourcer: git failed: %s: %w", line, cierr.ErrNetwork)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstLine(out string) string {
	out = strings.TrimSpace(out)
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	if out == "" {
		return "no output"
	}
	return out
}
