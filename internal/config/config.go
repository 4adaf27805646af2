package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// SettingsPrefix scopes the completion endpoint settings (OPENAI_MODEL, ...).
	SettingsPrefix = "OPENAI"
	// ServerPrefix scopes the server knobs (CHATBOT_PORT, ...).
	ServerPrefix = "CHATBOT"

	DefaultCredential = "abc123"
	DefaultEnvFile    = ".env"

	EngineOpenAI = "openai"
	EngineEcho   = "echo"
)

var (
	ErrMissingModel    = errors.New("model is required")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrUnknownEngine   = errors.New("unknown engine")
)

// Settings configures the completion endpoint. It is loaded once at startup
// and passed by value afterwards.
type Settings struct {
	Endpoint   string
	Model      string
	Credential Secret
}

// Validate rejects settings the completion client cannot start with.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("%w: set %s_MODEL", ErrMissingModel, SettingsPrefix)
	}
	if s.Endpoint != "" {
		u, err := url.Parse(s.Endpoint)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidEndpoint, s.Endpoint)
		}
	}
	return nil
}

// Server holds the knobs of the HTTP front-end.
type Server struct {
	Port         string
	LogLevel     string
	LogJSON      bool
	LogFile      string
	SessionTTL   time.Duration
	Engine       string
	WaitTimeout  time.Duration
	WaitInterval time.Duration
}

func (s Server) Validate() error {
	switch s.Engine {
	case EngineOpenAI, EngineEcho:
	default:
		return fmt.Errorf("%w: %q (want %s or %s)", ErrUnknownEngine, s.Engine, EngineOpenAI, EngineEcho)
	}
	if s.Port == "" {
		return errors.New("port is required")
	}
	return nil
}

type Config struct {
	Settings Settings
	Server   Server
}

// BindFlags registers the server flags. Every flag can also be set via
// CHATBOT_<FLAG> with dashes turned into underscores.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("port", "8080", "HTTP listen port")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("log-file", "", "also write logs to this file (rotated)")
	flags.Duration("session-ttl", 2*time.Hour, "drop chat sessions idle for longer than this")
	flags.String("engine", EngineOpenAI, "completion engine: openai|echo")
	flags.Duration("wait-timeout", 0, "wait this long for the endpoint to list the model before serving (0 disables)")
	flags.Duration("wait-interval", 2*time.Second, "poll interval while waiting for the endpoint")
	flags.String("env-file", DefaultEnvFile, "dotenv file read before the environment")
}

// Load reads the dotenv file named by the env-file flag, then the process
// environment, then flags. Real environment variables win over
// the dotenv file. Unknown keys are ignored.
func Load(flags *pflag.FlagSet) (Config, error) {
	envFile := DefaultEnvFile
	if flags != nil {
		if f := flags.Lookup("env-file"); f != nil {
			envFile = f.Value.String()
		}
	}
	dotenv, err := readDotEnv(envFile)
	if err != nil {
		return Config{}, err
	}

	settings, err := loadSettings(dotenv)
	if err != nil {
		return Config{}, err
	}
	server, err := loadServer(dotenv, flags)
	if err != nil {
		return Config{}, err
	}
	return Config{Settings: settings, Server: server}, nil
}

func loadSettings(dotenv map[string]string) (Settings, error) {
	v := newViper(SettingsPrefix, dotenv, map[string]any{
		"base_url": "",
		"model":    "",
		"api_key":  DefaultCredential,
	})
	// a variable set to "" still overrides the dotenv file
	v.AllowEmptyEnv(true)
	s := Settings{
		Endpoint:   strings.TrimSpace(v.GetString("base_url")),
		Model:      strings.TrimSpace(v.GetString("model")),
		Credential: Secret(v.GetString("api_key")),
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func loadServer(dotenv map[string]string, flags *pflag.FlagSet) (Server, error) {
	v := newViper(ServerPrefix, dotenv, nil)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Server{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	s := Server{
		Port:         v.GetString("port"),
		LogLevel:     v.GetString("log-level"),
		LogJSON:      v.GetBool("log-json"),
		LogFile:      v.GetString("log-file"),
		SessionTTL:   v.GetDuration("session-ttl"),
		Engine:       strings.ToLower(v.GetString("engine")),
		WaitTimeout:  v.GetDuration("wait-timeout"),
		WaitInterval: v.GetDuration("wait-interval"),
	}
	if err := s.Validate(); err != nil {
		return Server{}, err
	}
	return s, nil
}

// newViper returns a viper instance reading PREFIX_KEY from the environment.
// Values from the dotenv file sit between the built-in defaults and the
// environment.
func newViper(prefix string, dotenv map[string]string, defaults map[string]any) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	for k, val := range dotenv {
		key, ok := strings.CutPrefix(strings.ToUpper(k), prefix+"_")
		if !ok || key == "" {
			continue
		}
		key = strings.ToLower(key)
		if prefix == ServerPrefix {
			key = strings.ReplaceAll(key, "_", "-")
		}
		v.SetDefault(key, val)
	}
	return v
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	m, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return m, nil
}
