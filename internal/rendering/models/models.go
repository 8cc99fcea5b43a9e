// Package models defines the persisted renderer configuration records.
package models

import (
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
)

// Field length bounds enforced on every write.
const (
	MaxIDLength     = 50
	MaxCommandLine  = 1024
	MaxEnvironment  = 4096
	MaxModules      = 4096
	MaxParamsFormat = 1024
)

// RendererConfig is a reusable template describing how to launch one kind of
// renderer. Keyed by a short identifier such as "rtneuron" or "livre".
type RendererConfig struct {
	ID                            string `json:"id" yaml:"id"`
	CommandLine                   string `json:"command_line" yaml:"command_line"`
	EnvironmentVariables          string `json:"environment_variables" yaml:"environment_variables"`
	Modules                       string `json:"modules" yaml:"modules"`
	ProcessRestParametersFormat   string `json:"process_rest_parameters_format" yaml:"process_rest_parameters_format"`
	SchedulerRestParametersFormat string `json:"scheduler_rest_parameters_format" yaml:"scheduler_rest_parameters_format"`
	GracefulExit                  bool   `json:"graceful_exit" yaml:"graceful_exit"`
	WaitUntilRunning              bool   `json:"wait_until_running" yaml:"wait_until_running"`
}

// Defaults returns a config with the persisted column defaults applied:
// graceful exit on, readiness gating off.
func Defaults() RendererConfig {
	return RendererConfig{GracefulExit: true}
}

// UnmarshalYAML decodes a config on top of the column defaults, so a seed
// file omitting graceful_exit gets true rather than the zero value.
func (c *RendererConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain RendererConfig
	out := plain(Defaults())
	if err := value.Decode(&out); err != nil {
		return err
	}
	*c = RendererConfig(out)
	return nil
}

// Validate checks identifier presence and the length bounds of every string
// field. Returns a validation error naming the first offending field.
func (c *RendererConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return apperrors.ValidationError("id", "must not be empty")
	}
	if len(c.ID) > MaxIDLength {
		return apperrors.ValidationError("id", "exceeds maximum length")
	}
	if strings.TrimSpace(c.CommandLine) == "" {
		return apperrors.ValidationError("command_line", "must not be empty")
	}
	if len(c.CommandLine) > MaxCommandLine {
		return apperrors.ValidationError("command_line", "exceeds maximum length")
	}
	if len(c.EnvironmentVariables) > MaxEnvironment {
		return apperrors.ValidationError("environment_variables", "exceeds maximum length")
	}
	if len(c.Modules) > MaxModules {
		return apperrors.ValidationError("modules", "exceeds maximum length")
	}
	if len(c.ProcessRestParametersFormat) > MaxParamsFormat {
		return apperrors.ValidationError("process_rest_parameters_format", "exceeds maximum length")
	}
	if len(c.SchedulerRestParametersFormat) > MaxParamsFormat {
		return apperrors.ValidationError("scheduler_rest_parameters_format", "exceeds maximum length")
	}
	return nil
}

// Executable returns the first token of the command line, the binary the
// scheduler runs and the name job artifacts are derived from.
func (c *RendererConfig) Executable() string {
	fields := strings.Fields(c.CommandLine)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
