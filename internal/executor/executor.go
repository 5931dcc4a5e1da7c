// Package executor runs external programs on behalf of the reconcilers.
//
// Every external call goes through [CommandExecutor] so that the switch
// reconciler and the console can be driven by a dry-run recorder or a mock
// in tests. Failures are reported as [*RunError], which separates a missing
// executable from a program that ran and exited non-zero.
package executor

import (
	"errors"
	"fmt"
	"strings"
)

// CommandExecutor is an interface that abstracts executing external commands.
type CommandExecutor interface {
	RunCommand(name string, arg ...string) (string, error)
}

// RunError describes a failed external command.
type RunError struct {
	Command  string
	Output   string
	ExitCode int
	NotFound bool
	Err      error
}

func (e *RunError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("command %s not found: %v", e.Command, e.Err)
	}
	if e.Output != "" {
		return fmt.Sprintf("command %s failed: %v, output: %s", e.Command, e.Err, e.Output)
	}
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err was caused by a missing executable.
func IsNotFound(err error) bool {
	var runErr *RunError
	return errors.As(err, &runErr) && runErr.NotFound
}

// ExitCode returns the exit status carried by err. The boolean is false when
// err is not a RunError or the process never exited.
func ExitCode(err error) (int, bool) {
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.NotFound || runErr.ExitCode < 0 {
		return 0, false
	}
	return runErr.ExitCode, true
}

// CommandLine renders name and args the way a shell user would type them.
func CommandLine(name string, arg ...string) string {
	if len(arg) == 0 {
		return name
	}
	return name + " " + strings.Join(arg, " ")
}
