package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrNoFile is returned when a descriptor file does not exist.
var ErrNoFile = errors.New("descriptor file does not exist")

const indent = "    "

// Marshal encodes v with sorted keys and a four space indent.
func Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", indent)
}

// Save replaces path with the encoding of v. Any existing file is removed
// before the new one is written.
func Save(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// LoadHost reads and decodes a host descriptor. Entry-level problems are
// left for the reconciler, see [Host.Sanitize].
func LoadHost(path string) (*Host, error) {
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	h := NewHost()
	if err := json.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return h, nil
}

// LoadSwitch reads and decodes a switch descriptor. Entry-level problems
// are left for the reconciler, see [Switch.Sanitize].
func LoadSwitch(path string) (*Switch, error) {
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	s := NewSwitch()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, nil
}
