package config

import (
	"os"
	"path/filepath"
	"testing"

	"part-identifier/internal/processing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnvMap(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnvMap(map[string]string{
		"PARTID_WORKERS":              "2",
		"PARTID_LOG_LEVEL":            "debug",
		"PARTID_DARK_FOREGROUND":      "false",
		"PARTID_CLAHE_CLIP_LIMIT":     "3.5",
		"PARTID_THRESHOLD_BLOCK_SIZE": "15",
		"PARTID_MORPH_SHAPE":          "cross",
		"PARTID_OCR_LANGUAGES":        " eng , fra ,",
		"PARTID_OCR_WHITELIST":        "ABC",
		"PARTID_TESSDATA_PREFIX":      "/opt/tessdata",
		"UNRELATED":                   "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Preprocess.Deskew.DarkForeground)
	assert.Equal(t, 3.5, cfg.Preprocess.CLAHE.ClipLimit)
	assert.Equal(t, 15, cfg.Preprocess.Threshold.BlockSize)
	assert.Equal(t, "cross", cfg.Preprocess.Morphology.Shape)
	assert.Equal(t, []string{"eng", "fra"}, cfg.OCR.Languages)
	assert.Equal(t, "ABC", cfg.OCR.Whitelist)
	assert.Equal(t, "/opt/tessdata", cfg.OCR.TessdataPrefix)
}

func TestApplyEnvMapBlankValuesKeepDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnvMap(map[string]string{"PARTID_MEDIAN_KERNEL_SIZE": "  "}))
	assert.Equal(t, 3, cfg.Preprocess.Median.KernelSize)
}

func TestApplyEnvMapRejectsMalformedNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnvMap(map[string]string{"PARTID_THRESHOLD_OFFSET": "five"})
	require.Error(t, err)
	assert.ErrorIs(t, err, processing.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "PARTID_THRESHOLD_OFFSET")
	assert.Equal(t, 5.0, cfg.Preprocess.Threshold.Offset)
}

func TestApplyEnvReadsProcessEnvironment(t *testing.T) {
	t.Setenv("PARTID_MORPH_ITERATIONS", "2")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 2, cfg.Preprocess.Morphology.Iterations)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PARTID_TEST_DOTENV_OCR_DPI=300\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PARTID_TEST_DOTENV_OCR_DPI") })

	loaded, err := LoadDotEnv(filepath.Join(dir, "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
	assert.Equal(t, "300", os.Getenv("PARTID_TEST_DOTENV_OCR_DPI"))

	loaded, err = LoadDotEnv(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
