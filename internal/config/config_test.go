package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable the loaders read and restores them after
// the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_API_KEY",
		"CHATBOT_PORT", "CHATBOT_LOG_LEVEL", "CHATBOT_LOG_JSON", "CHATBOT_LOG_FILE",
		"CHATBOT_SESSION_TTL", "CHATBOT_ENGINE", "CHATBOT_WAIT_TIMEOUT", "CHATBOT_WAIT_INTERVAL",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func loadFile(t *testing.T, path string) (Settings, error) {
	t.Helper()
	dotenv, err := readDotEnv(path)
	require.NoError(t, err)
	return loadSettings(dotenv)
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadSettings_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_MODEL", "gpt-test")

	s, err := loadFile(t, missingEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "", s.Endpoint)
	assert.Equal(t, "gpt-test", s.Model)
	assert.Equal(t, DefaultCredential, s.Credential.Reveal())
}

func TestLoadSettings_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("OPENAI_MODEL", "llama3.2")
	t.Setenv("OPENAI_API_KEY", "sk-live")
	t.Setenv("OPENAI_ORGANIZATION", "ignored")

	s, err := loadFile(t, missingEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", s.Endpoint)
	assert.Equal(t, "llama3.2", s.Model)
	assert.Equal(t, "sk-live", s.Credential.Reveal())
}

func TestLoadSettings_DotEnvBelowEnvironment(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "OPENAI_MODEL=file-model\nOPENAI_BASE_URL=http://file.example\nOPENAI_EXTRA=1\nUNRELATED=x\n")
	t.Setenv("OPENAI_BASE_URL", "https://env.example/v1")

	s, err := loadFile(t, path)
	require.NoError(t, err)
	assert.Equal(t, "file-model", s.Model)
	assert.Equal(t, "https://env.example/v1", s.Endpoint)
}

func TestLoadSettings_EmptyEnvironmentOverridesDotEnv(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "OPENAI_MODEL=file-model\nOPENAI_BASE_URL=http://dotenv.example/v1\nOPENAI_API_KEY=sk-file\n")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("OPENAI_API_KEY", "")

	s, err := loadFile(t, path)
	require.NoError(t, err)
	assert.Equal(t, "file-model", s.Model)
	assert.Equal(t, "", s.Endpoint)
	assert.Equal(t, "", s.Credential.Reveal())
}

func TestLoadSettings_Errors(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		model    string
		want     error
	}{
		{name: "missing model", want: ErrMissingModel},
		{name: "blank model", model: "   ", want: ErrMissingModel},
		{name: "relative endpoint", endpoint: "localhost/v1", model: "m", want: ErrInvalidEndpoint},
		{name: "wrong scheme", endpoint: "ftp://host/v1", model: "m", want: ErrInvalidEndpoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OPENAI_BASE_URL", tt.endpoint)
			t.Setenv("OPENAI_MODEL", tt.model)

			_, err := loadFile(t, missingEnvFile(t))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSecret_NeverPrinted(t *testing.T) {
	s := Settings{Endpoint: "http://x", Model: "m", Credential: Secret("sk-very-secret")}

	assert.NotContains(t, fmt.Sprintf("%v", s), "sk-very-secret")
	assert.NotContains(t, fmt.Sprintf("%+v", s), "sk-very-secret")
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-very-secret")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("settings", "credential", s.Credential)
	assert.NotContains(t, buf.String(), "sk-very-secret")
	assert.Contains(t, buf.String(), redacted)

	assert.Equal(t, "sk-very-secret", s.Credential.Reveal())
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_ServerPrecedence(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "OPENAI_MODEL=m\nCHATBOT_SESSION_TTL=30m\nCHATBOT_PORT=7000\n")
	t.Setenv("CHATBOT_LOG_LEVEL", "debug")

	fs := newFlags(t, "--env-file", path, "--engine", "ECHO", "--port", "9090")
	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, EngineEcho, cfg.Server.Engine)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionTTL)
	assert.Equal(t, 2*time.Second, cfg.Server.WaitInterval)
	assert.Equal(t, "m", cfg.Settings.Model)
}

func TestLoad_UnknownEngine(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_MODEL", "m")

	fs := newFlags(t, "--env-file", missingEnvFile(t), "--engine", "bard")
	_, err := Load(fs)
	require.ErrorIs(t, err, ErrUnknownEngine)
}
