package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_NoArgsShowsHelp(t *testing.T) {
	stdout, _, err := execute(t)

	require.NoError(t, err)
	assert.Contains(t, stdout, "rerankd")
	assert.Contains(t, stdout, "rank")
	assert.Contains(t, stdout, "model")
}

func TestRoot_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.Contains(t, names, "rank")
	assert.Contains(t, names, "model")
	assert.Contains(t, names, "config")
	assert.Contains(t, names, "version")
}

func TestRoot_UnknownCommandFails(t *testing.T) {
	_, _, err := execute(t, "does-not-exist")

	assert.Error(t, err)
}
