package executor

import (
	"sync"
)

// DryRunExecutor implements CommandExecutor but only records commands.
type DryRunExecutor struct {
	mu       sync.Mutex
	Commands []string
}

// NewDryRunExecutor creates a new dry run executor.
func NewDryRunExecutor() *DryRunExecutor {
	return &DryRunExecutor{
		Commands: make([]string, 0),
	}
}

// RunCommand records the command instead of executing it.
func (e *DryRunExecutor) RunCommand(name string, arg ...string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Commands = append(e.Commands, CommandLine(name, arg...))
	return "", nil
}

// Recorded returns a copy of the commands seen so far.
func (e *DryRunExecutor) Recorded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Commands))
	copy(out, e.Commands)
	return out
}
