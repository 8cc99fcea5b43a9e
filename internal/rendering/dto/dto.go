package dto

import (
	"github.com/bluegrid/rrm/internal/rendering/models"
)

type RendererConfigDTO struct {
	ID                            string `json:"id"`
	CommandLine                   string `json:"command_line"`
	EnvironmentVariables          string `json:"environment_variables"`
	Modules                       string `json:"modules"`
	ProcessRestParametersFormat   string `json:"process_rest_parameters_format"`
	SchedulerRestParametersFormat string `json:"scheduler_rest_parameters_format"`
	GracefulExit                  bool   `json:"graceful_exit"`
	WaitUntilRunning              bool   `json:"wait_until_running"`
}

// SaveConfigRequest is the create/update payload. Boolean flags are pointers
// so an omitted graceful_exit keeps its column default of true.
type SaveConfigRequest struct {
	ID                            string `json:"id"`
	CommandLine                   string `json:"command_line"`
	EnvironmentVariables          string `json:"environment_variables"`
	Modules                       string `json:"modules"`
	ProcessRestParametersFormat   string `json:"process_rest_parameters_format"`
	SchedulerRestParametersFormat string `json:"scheduler_rest_parameters_format"`
	GracefulExit                  *bool  `json:"graceful_exit"`
	WaitUntilRunning              *bool  `json:"wait_until_running"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ToModel converts the request to a model on top of the column defaults.
func (r *SaveConfigRequest) ToModel() *models.RendererConfig {
	cfg := models.Defaults()
	cfg.ID = r.ID
	cfg.CommandLine = r.CommandLine
	cfg.EnvironmentVariables = r.EnvironmentVariables
	cfg.Modules = r.Modules
	cfg.ProcessRestParametersFormat = r.ProcessRestParametersFormat
	cfg.SchedulerRestParametersFormat = r.SchedulerRestParametersFormat
	if r.GracefulExit != nil {
		cfg.GracefulExit = *r.GracefulExit
	}
	if r.WaitUntilRunning != nil {
		cfg.WaitUntilRunning = *r.WaitUntilRunning
	}
	return &cfg
}

func FromConfig(cfg *models.RendererConfig) RendererConfigDTO {
	return RendererConfigDTO{
		ID:                            cfg.ID,
		CommandLine:                   cfg.CommandLine,
		EnvironmentVariables:          cfg.EnvironmentVariables,
		Modules:                       cfg.Modules,
		ProcessRestParametersFormat:   cfg.ProcessRestParametersFormat,
		SchedulerRestParametersFormat: cfg.SchedulerRestParametersFormat,
		GracefulExit:                  cfg.GracefulExit,
		WaitUntilRunning:              cfg.WaitUntilRunning,
	}
}
