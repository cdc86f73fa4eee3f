package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envStartPoint, envPush, envSafe, envSkipApplied, envBranchPrefix} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, "master", cfg.StartPoint)
	require.False(t, cfg.Push)
	require.False(t, cfg.Safe)
	require.False(t, cfg.SkipApplied)
	require.Empty(t, cfg.BranchPrefix)
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadRepoFileCamelCase(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	content := "startPoint: main\npush: true\nbranchPrefix: yank/\n"
	require.NoError(t, writeConfig(dir, content))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "main", cfg.StartPoint)
	require.True(t, cfg.Push)
	require.Equal(t, "yank/", cfg.BranchPrefix)
	require.False(t, cfg.Safe)
}

func TestLoadRepoFileSnakeCase(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	content := "start_point: trunk\nskip_applied: true\n"
	require.NoError(t, writeConfig(dir, content))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "trunk", cfg.StartPoint)
	require.True(t, cfg.SkipApplied)
}

func TestLoadEnvWhenNoFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Setenv(envStartPoint, "develop")
	t.Setenv(envSafe, "true")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "develop", cfg.StartPoint)
	require.True(t, cfg.Safe)
}

func TestLoadRepoFileOutranksEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	require.NoError(t, writeConfig(dir, "startPoint: main\n"))
	t.Setenv(envStartPoint, "develop")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "main", cfg.StartPoint)
}

func TestLoadRejectsInvalidEnvBool(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Setenv(envPush, "definitely")

	_, err := Load(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), envPush)
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	require.NoError(t, writeConfig(dir, "startPoint: [\n"))

	_, err := Load(dir)
	require.Error(t, err)
}

func writeConfig(dir, content string) error {
	return os.WriteFile(filepath.Join(dir, repoConfigFileName), []byte(content), 0o600)
}
