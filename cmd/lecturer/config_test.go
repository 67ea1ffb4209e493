package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitKeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	savedHome, savedForce := homeDir, configForce
	t.Cleanup(func() { homeDir, configForce = savedHome, savedForce })
	homeDir, configForce = dir, false

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  concurrency: 3\n"), 0o644))

	err := configInitCmd.RunE(configInitCmd, nil)
	assert.ErrorContains(t, err, "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pool:\n  concurrency: 3\n", string(data))

	configForce = true
	require.NoError(t, configInitCmd.RunE(configInitCmd, nil))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Lecturer configuration")
}
