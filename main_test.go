package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varsilias/chatbot/internal/buildinfo"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), buildinfo.Version)
	assert.Contains(t, out.String(), buildinfo.Commit)
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"port", "log-level", "log-json", "log-file", "session-ttl", "engine", "wait-timeout", "wait-interval", "env-file"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestRootCommand_ConfigError(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--env-file", t.TempDir() + "/none.env"})

	require.Error(t, cmd.Execute())
}
