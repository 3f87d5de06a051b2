package strategy

import (
	"context"
	"io"
	"os/exec"

	"github.com/pkg/errors"
)

// CommandRunner is the seam between the direct-sync strategy and the
// operating system. Line-oriented tool output is streamed to stdout as it is
// produced so a killed subprocess still yields the lines it managed to emit.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdout io.Writer) error
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stdout
	return cmd.Run()
}

// spawnFailure reports whether the error means the tool could not be started
// at all, as opposed to starting and then failing.
func spawnFailure(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr)
}

// exitCode extracts the process exit code, or -1 if the process never ran.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
