package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Output is the captured result of a finished external command.
type Output struct {
	Stdout   string
	ExitCode int
}

// Runner executes short-lived external tools (systemctl, ss, ...).
// A non-zero exit status is reported through Output.ExitCode with a nil error;
// the error is reserved for commands that could not run to completion
// (binary missing, killed by ctx deadline or cancellation).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	// #nosec G204
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Output{Stdout: stdout.String(), ExitCode: -1}, fmt.Errorf("%s: %w", name, ctxErr)
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return Output{Stdout: stdout.String(), ExitCode: ee.ExitCode()}, nil
		}
		return Output{ExitCode: -1}, fmt.Errorf("%s: %w", name, err)
	}
	return Output{Stdout: stdout.String()}, nil
}
