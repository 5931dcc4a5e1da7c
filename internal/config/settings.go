package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"grimm.is/netemstate/internal/logging"
	"grimm.is/netemstate/internal/retry"
)

// Settings is the resolved tool configuration. Every field has a usable
// default, so a missing settings file is never an error on its own.
type Settings struct {
	Retry   RetrySettings
	Host    HostSettings
	Switch  SwitchSettings
	Log     LogSettings
	Metrics MetricsSettings
}

// RetrySettings bounds the whole-pass retry of both reconcilers.
type RetrySettings struct {
	Attempts int
	Delay    time.Duration
}

// HostSettings tunes the host-interface reconciler.
type HostSettings struct {
	// InterfacePrefix selects which plain interfaces are captured when the
	// --all flag is not given.
	InterfacePrefix string
	// NetNS names a network namespace to operate in instead of the current one.
	NetNS string
}

// SwitchSettings locates the Open vSwitch tools.
type SwitchSettings struct {
	VSCtl   string
	AppCtl  string
	Timeout int // seconds, passed to ovs-vsctl --timeout
}

// LogSettings configures the default logger.
type LogSettings struct {
	Level string
	JSON  bool
}

// MetricsSettings configures the node-exporter textfile output.
type MetricsSettings struct {
	Textfile string
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Retry: RetrySettings{
			Attempts: retry.DefaultAttempts,
			Delay:    retry.DefaultDelay,
		},
		Host: HostSettings{
			InterfacePrefix: "eth",
		},
		Switch: SwitchSettings{
			VSCtl:   "ovs-vsctl",
			AppCtl:  "ovs-appctl",
			Timeout: 30,
		},
		Log: LogSettings{
			Level: "warn",
		},
	}
}

// RetryPolicy converts the retry block into a policy.
func (s *Settings) RetryPolicy() retry.Policy {
	return retry.Policy{Attempts: s.Retry.Attempts, Delay: s.Retry.Delay}
}

// LogLevel parses the configured level.
func (s *Settings) LogLevel() (logging.Level, error) {
	return logging.ParseLevel(s.Log.Level)
}

// Validate reports every invalid setting at once.
func (s *Settings) Validate() error {
	var errs []error
	if s.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts must be at least 1, got %d", s.Retry.Attempts))
	}
	if s.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry.delay must not be negative, got %s", s.Retry.Delay))
	}
	if strings.TrimSpace(s.Switch.VSCtl) == "" {
		errs = append(errs, errors.New("switch.vsctl must not be empty"))
	}
	if strings.TrimSpace(s.Switch.AppCtl) == "" {
		errs = append(errs, errors.New("switch.appctl must not be empty"))
	}
	if s.Switch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("switch.timeout must not be negative, got %d", s.Switch.Timeout))
	}
	if _, err := s.LogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}
