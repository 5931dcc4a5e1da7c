package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// settingsFile mirrors the on-disk layout. Blocks and attributes are all
// optional; anything left out keeps its default.
type settingsFile struct {
	Retry   *retryBlock   `hcl:"retry,block"`
	Host    *hostBlock    `hcl:"host,block"`
	Switch  *switchBlock  `hcl:"switch,block"`
	Log     *logBlock     `hcl:"log,block"`
	Metrics *metricsBlock `hcl:"metrics,block"`
}

type retryBlock struct {
	Attempts *int    `hcl:"attempts,optional"`
	Delay    *string `hcl:"delay,optional"`
}

type hostBlock struct {
	InterfacePrefix *string `hcl:"interface_prefix,optional"`
	NetNS           *string `hcl:"netns,optional"`
}

type switchBlock struct {
	VSCtl   *string `hcl:"vsctl,optional"`
	AppCtl  *string `hcl:"appctl,optional"`
	Timeout *int    `hcl:"timeout,optional"`
}

type logBlock struct {
	Level *string `hcl:"level,optional"`
	JSON  *bool   `hcl:"json,optional"`
}

type metricsBlock struct {
	Textfile *string `hcl:"textfile,optional"`
}

// LoadFile loads settings from an HCL or JSON file, chosen by extension.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(data, path)
	case ".hcl":
		return LoadHCL(data, path)
	default:
		// Try HCL first, fall back to JSON
		s, err := LoadHCL(data, path)
		if err != nil {
			return LoadJSON(data, path)
		}
		return s, nil
	}
}

// LoadOrDefault loads path when it exists. A missing file yields the
// defaults unless required is set.
func LoadOrDefault(path string, required bool) (*Settings, error) {
	s, err := LoadFile(path)
	if err == nil {
		return s, nil
	}
	if !required && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}

// LoadHCL loads settings from HCL bytes.
func LoadHCL(data []byte, filename string) (*Settings, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}
	return decode(file)
}

// LoadJSON loads settings written in HCL's JSON syntax.
func LoadJSON(data []byte, filename string) (*Settings, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseJSON(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("JSON parse error: %s", diags.Error())
	}
	return decode(file)
}

func decode(file *hcl.File) (*Settings, error) {
	var raw settingsFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("config decode error: %s", diags.Error())
	}

	s := Default()
	if err := raw.applyTo(s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *settingsFile) applyTo(s *Settings) error {
	if b := f.Retry; b != nil {
		setIf(&s.Retry.Attempts, b.Attempts)
		if b.Delay != nil {
			d, err := time.ParseDuration(*b.Delay)
			if err != nil {
				return fmt.Errorf("retry.delay: %w", err)
			}
			s.Retry.Delay = d
		}
	}
	if b := f.Host; b != nil {
		setIf(&s.Host.InterfacePrefix, b.InterfacePrefix)
		setIf(&s.Host.NetNS, b.NetNS)
	}
	if b := f.Switch; b != nil {
		setIf(&s.Switch.VSCtl, b.VSCtl)
		setIf(&s.Switch.AppCtl, b.AppCtl)
		setIf(&s.Switch.Timeout, b.Timeout)
	}
	if b := f.Log; b != nil {
		setIf(&s.Log.Level, b.Level)
		setIf(&s.Log.JSON, b.JSON)
	}
	if b := f.Metrics; b != nil {
		setIf(&s.Metrics.Textfile, b.Textfile)
	}
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
