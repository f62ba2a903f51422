package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsBadShapes(t *testing.T) {
	cfg := Default()
	cfg.Runtime.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Bench.Operators = 20
	cfg.Device.FrontierChunks = 2
	assert.Error(t, cfg.Validate(), "16 frontier slots cannot hold 20 operators")
}

func TestLoadFromFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tidalflow.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`
runtime:
  workers: 4
bench:
  rounds: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Runtime.Workers)
	assert.Equal(t, 10, cfg.Bench.Rounds)
	assert.Equal(t, Default().Bench.Data, cfg.Bench.Data, "unset keys keep defaults")
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Runtime.Workers, cfg.Runtime.Workers)
}

func TestRenderIsYAML(t *testing.T) {
	rendered, err := Default().Render()
	require.NoError(t, err)
	assert.Contains(t, rendered, "workers: 1")
}

func TestDeviceProfileValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.json")

	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "sim",
		"data_chunks": 500,
		"frontier_chunks": 2,
		"operators": 12
	}`), 0o644))

	profile, err := LoadDeviceProfile(path)
	require.NoError(t, err)

	assert.Equal(t, 500, profile.DataChunks)
	assert.Equal(t, 500, profile.OutputChunks, "output window defaults to the input window")
	assert.Equal(t, 12, profile.Operators)
}

func TestDeviceProfileRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"data_chunks": -1}`), 0o644))

	_, err := LoadDeviceProfile(path)
	assert.Error(t, err)
}
