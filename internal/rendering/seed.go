// Package rendering seeds renderer configurations from a YAML file at boot.
package rendering

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/rendering/models"
	"github.com/bluegrid/rrm/internal/rendering/repository"
)

type seedFile struct {
	Configs []*models.RendererConfig `yaml:"configs"`
}

// SeedFromFile upserts the renderer configurations listed in a YAML file.
// Existing ids are updated in place. Invalid entries are skipped with a
// warning so one bad record does not block service start. Returns the number
// of configs applied.
func SeedFromFile(ctx context.Context, repo repository.Repository, path string, log *logger.Logger) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	applied := 0
	for _, cfg := range file.Configs {
		if err := cfg.Validate(); err != nil {
			log.Warn("skipping invalid seed config",
				zap.String("config_id", cfg.ID),
				zap.Error(err))
			continue
		}
		if err := repo.Create(ctx, cfg); err != nil {
			if !apperrors.IsConflict(err) {
				return applied, err
			}
			if err := repo.Update(ctx, cfg); err != nil {
				return applied, err
			}
		}
		applied++
	}
	return applied, nil
}
