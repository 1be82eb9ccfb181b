package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelStatus_EmptyCacheReportsMissing(t *testing.T) {
	repo := newModelRepo(t)
	backend := newScoreBackend(t, nil)
	rankEnv(t, repo, backend)

	stdout, _, err := execute(t, "model", "status")

	require.NoError(t, err)
	assert.Contains(t, stdout, "config.json")
	assert.Contains(t, stdout, "not cached")
	assert.Contains(t, stdout, "rerankd model download")
}

func TestModelDownload_ThenStatusShowsCached(t *testing.T) {
	repo := newModelRepo(t)
	backend := newScoreBackend(t, nil)
	rankEnv(t, repo, backend)

	stdout, _, err := execute(t, "model", "download")
	require.NoError(t, err)
	assert.Contains(t, stdout, "fetching model_quantized.onnx")
	assert.Contains(t, stdout, "model assets cached")

	stdout, _, err = execute(t, "model", "status")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "not cached")
}

func TestModelDownload_UnreachableRepositoryFails(t *testing.T) {
	repo := newModelRepo(t)
	backend := newScoreBackend(t, nil)
	rankEnv(t, repo, backend)
	t.Setenv("RERANKD_MODEL_REMOTE_BASE", "http://127.0.0.1:1/nope")

	_, _, err := execute(t, "model", "download")

	require.Error(t, err)
}
