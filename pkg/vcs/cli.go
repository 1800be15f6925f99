package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// cliRunner executes git commands against a repository working directory.
type cliRunner struct {
	dir string
}

// run executes git with the given arguments and returns trimmed stdout.
func (r *cliRunner) run(ctx context.Context, args ...string) (string, error) {
	out, _, err := r.runWithCode(ctx, args...)
	return out, err
}

// runWithCode executes git and returns stdout plus the exit code, so probe
// operations can distinguish "conflict" from "broken".
func (r *cliRunner) runWithCode(ctx context.Context, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
		err = nil
	}
	if err != nil {
		return "", -1, fmt.Errorf("git %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimRight(stdout.String(), "\n"), code, nil
}

// mergeTree runs a no-checkout three-way merge and reports conflicts. The
// --write-tree form exits 1 on conflicts and lists the conflicted paths in
// the informational section.
func (r *cliRunner) mergeTree(ctx context.Context, base, ours, theirs string) (*ProbeResult, error) {
	args := []string{"merge-tree", "--write-tree", "--name-only"}
	if base != "" {
		args = append(args, "--merge-base", base)
	}
	args = append(args, ours, theirs)

	out, code, err := r.runWithCode(ctx, args...)
	if err != nil {
		return nil, err
	}
	switch code {
	case 0:
		return &ProbeResult{Clean: true, TreeOID: strings.TrimSpace(strings.Split(out, "\n")[0])}, nil
	case 1:
		lines := strings.Split(out, "\n")
		var conflicts []string
		// First line is the tree oid; an empty line separates it from the
		// conflicted file section.
		for _, line := range lines[1:] {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				conflicts = append(conflicts, trimmed)
			}
		}
		return &ProbeResult{Clean: false, Conflicts: conflicts}, nil
	default:
		return nil, fmt.Errorf("git merge-tree failed with exit code %d", code)
	}
}
