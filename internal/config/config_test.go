package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "derivo.yaml", `
phrase_table: table.yaml
weights:
  tm: [1.0]
  lm: [0.5]
lm:
  - {name: lm, path: toy.arpa, order: 3}
search:
  stack_size: 20
gibbs:
  iterations: 50
  operators: [flip]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "table.yaml", cfg.PhraseTable)
	assert.Equal(t, []float64{1.0}, cfg.Weights["tm"])
	assert.Equal(t, 3, cfg.LM[0].Order)
	assert.Equal(t, 20, cfg.Search.StackSize)
	assert.Equal(t, 50, cfg.Gibbs.Iterations)
	assert.Equal(t, []string{"flip"}, cfg.Gibbs.Operators)

	// untouched sections keep their defaults
	assert.Equal(t, 10, cfg.Gibbs.BurnIn)
	assert.Equal(t, 5, cfg.NBest.ArcMultiplier)
	assert.Equal(t, "derivo.db", cfg.Storage.DB)
	assert.Equal(t, "msd", cfg.Reordering)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "derivo.yaml", "phrase_table: t.yaml\nweights: {tm: [1]}\n")
	t.Setenv("DERIVO_DB", "/tmp/other.db")
	t.Setenv("DERIVO_LOG_LEVEL", "debug")
	t.Setenv("DERIVO_SEED", "1234")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, uint64(1234), cfg.Gibbs.Seed)

	t.Setenv("DERIVO_SEED", "minus one")
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "DERIVO_SEED")
}

func TestLoadConfig_WeightsFile(t *testing.T) {
	dir := t.TempDir()
	weights := writeFile(t, dir, "weights.txt", "# tuned\ntm 0.7\n\nmsd 0.1 0.2 0.3\n")
	path := writeFile(t, dir, "derivo.yaml", "phrase_table: t.yaml\nweights: {tm: [1], lm: [0.5]}\nweights_file: "+weights+"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.7}, cfg.Weights["tm"])
	assert.Equal(t, []float64{0.5}, cfg.Weights["lm"])
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, cfg.Weights["msd"])
}

func TestReadWeights_Errors(t *testing.T) {
	_, err := ReadWeights(strings.NewReader("tm\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = ReadWeights(strings.NewReader("tm 1\nlm x\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Search.StackSize = 0
	cfg.Gibbs.Temperature = 0
	cfg.Workers = 0
	cfg.LM = []LMConfig{{Name: "lm"}}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"phrase_table", "no weights", "lm[0]", "stack_size", "temperature", "workers"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
