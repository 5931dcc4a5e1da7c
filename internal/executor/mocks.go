package executor

import (
	"github.com/stretchr/testify/mock"
)

// MockCommandExecutor is a mock implementation of the CommandExecutor interface.
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) RunCommand(name string, arg ...string) (string, error) {
	args := []interface{}{name}
	for _, a := range arg {
		args = append(args, a)
	}
	ret := m.Called(args...)
	return ret.String(0), ret.Error(1)
}
