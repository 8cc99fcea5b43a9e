package rendering

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/rendering/repository"
)

const seedYAML = `configs:
  - id: rtneuron
    command_line: rtneuron --daemon
    modules: BBP/viz/rtneuron/latest
    scheduler_rest_parameters_format: "--rest ${rest_hostname}:${rest_port}"
  - id: livre
    command_line: livre
    graceful_exit: false
    wait_until_running: true
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "configs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSeedFromFile(t *testing.T) {
	repo := repository.NewMemoryRepository()
	path := writeSeedFile(t, seedYAML)

	applied, err := SeedFromFile(context.Background(), repo, path, logger.Default())
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	rtneuron, err := repo.Get(context.Background(), "rtneuron")
	require.NoError(t, err)
	assert.Equal(t, "rtneuron --daemon", rtneuron.CommandLine)
	assert.True(t, rtneuron.GracefulExit, "graceful_exit defaults to true when omitted")
	assert.False(t, rtneuron.WaitUntilRunning)

	livre, err := repo.Get(context.Background(), "livre")
	require.NoError(t, err)
	assert.False(t, livre.GracefulExit)
	assert.True(t, livre.WaitUntilRunning)
}

func TestSeedFromFileUpserts(t *testing.T) {
	repo := repository.NewMemoryRepository()
	path := writeSeedFile(t, seedYAML)
	ctx := context.Background()

	_, err := SeedFromFile(ctx, repo, path, logger.Default())
	require.NoError(t, err)

	// Re-seeding with changed content updates in place.
	changed := writeSeedFile(t, `configs:
  - id: rtneuron
    command_line: rtneuron --daemon --verbose
`)
	applied, err := SeedFromFile(ctx, repo, changed, logger.Default())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	cfg, err := repo.Get(ctx, "rtneuron")
	require.NoError(t, err)
	assert.Equal(t, "rtneuron --daemon --verbose", cfg.CommandLine)
}

func TestSeedFromFileSkipsInvalid(t *testing.T) {
	repo := repository.NewMemoryRepository()
	path := writeSeedFile(t, `configs:
  - id: ""
    command_line: nameless
  - id: livre
    command_line: livre
`)

	applied, err := SeedFromFile(context.Background(), repo, path, logger.Default())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	configs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "livre", configs[0].ID)
}

func TestSeedFromFileMissing(t *testing.T) {
	repo := repository.NewMemoryRepository()
	_, err := SeedFromFile(context.Background(), repo, "/nonexistent/configs.yaml", logger.Default())
	assert.Error(t, err)
}
