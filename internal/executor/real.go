package executor

import (
	"errors"
	"strings"

	kexec "k8s.io/utils/exec"
)

// DefaultCommandExecutor is the default RealCommandExecutor instance.
var DefaultCommandExecutor CommandExecutor = NewRealCommandExecutor(kexec.New())

// RealCommandExecutor runs commands through a k8s.io/utils/exec runner.
type RealCommandExecutor struct {
	runner kexec.Interface
}

// NewRealCommandExecutor returns an executor backed by runner.
func NewRealCommandExecutor(runner kexec.Interface) *RealCommandExecutor {
	return &RealCommandExecutor{runner: runner}
}

// RunCommand runs a command and returns its combined output without the
// trailing newline.
func (r *RealCommandExecutor) RunCommand(name string, arg ...string) (string, error) {
	output, err := r.runner.Command(name, arg...).CombinedOutput()
	out := strings.TrimSuffix(string(output), "\n")
	if err != nil {
		runErr := &RunError{
			Command:  CommandLine(name, arg...),
			Output:   out,
			ExitCode: -1,
			Err:      err,
		}
		var exitErr kexec.ExitError
		switch {
		case errors.Is(err, kexec.ErrExecutableNotFound):
			runErr.NotFound = true
		case errors.As(err, &exitErr):
			runErr.ExitCode = exitErr.ExitStatus()
		}
		return out, runErr
	}
	return out, nil
}
