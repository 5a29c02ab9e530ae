package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	stdout, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "support-relay dev\n", stdout)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	_, err := executeCLI(t, "serve", "--log-format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
}

func TestServeRejectsArgs(t *testing.T) {
	_, err := executeCLI(t, "serve", "extra")
	require.Error(t, err)
}
