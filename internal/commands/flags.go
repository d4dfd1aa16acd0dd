package commands

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hay-kot/mqchat/internal/chat"
	"github.com/hay-kot/mqchat/internal/core/config"
	"github.com/hay-kot/mqchat/internal/core/transport"
	"github.com/hay-kot/mqchat/internal/store/linefile"
	"github.com/hay-kot/mqchat/internal/transport/loopback"
	"github.com/hay-kot/mqchat/internal/transport/mqtt"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// Overrides for values in the config file
	Broker   string
	Username string
	Channel  string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Store holds the transcripts under Config.ChatDir
	Store *linefile.Store

	loopbackOnce sync.Once
	loopback     *loopback.Broker
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "mqchat", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "mqchat")
}

// ApplyOverrides copies non-empty command line overrides onto the loaded
// config and validates the result.
func (f *Flags) ApplyOverrides() error {
	if f.Broker != "" {
		f.Config.Broker = f.Broker
	}
	if f.Username != "" {
		f.Config.Username = f.Username
	}
	if f.Channel != "" {
		f.Config.Channel = f.Channel
	}
	return f.Config.Validate()
}

// SessionConfig maps the loaded config onto chat session settings.
func (f *Flags) SessionConfig() chat.SessionConfig {
	cfg := f.Config
	return chat.SessionConfig{
		Router: chat.Config{
			Channel:        cfg.Channel,
			Username:       cfg.Username,
			BroadcastLabel: cfg.BroadcastLabel,
			QoS:            cfg.QoS,
			Retain:         cfg.Retain,
		},
		ConnectTimeout:    cfg.Timeout(),
		SerializeHandlers: cfg.SerializeHandlers,
		DispatchBuffer:    cfg.DispatchBuffer,
	}
}

// TransportFactory returns the factory for the configured broker. A
// loopback:// broker runs in-process and is shared by every session of this
// process.
func (f *Flags) TransportFactory(logger zerolog.Logger) transport.Factory {
	if strings.HasPrefix(f.Config.Broker, loopback.Scheme) {
		f.loopbackOnce.Do(func() {
			f.loopback = loopback.NewBroker(logger)
		})
		return f.loopback.Factory()
	}
	return mqtt.Factory(f.Config.Broker, logger)
}

// NewSession builds an unopened session for the configured user.
func (f *Flags) NewSession(logger zerolog.Logger) (*chat.Session, error) {
	if err := f.Config.RequireUsername(); err != nil {
		return nil, err
	}
	return chat.NewSession(f.SessionConfig(), f.TransportFactory(logger), f.Store, logger), nil
}

// NewRouter builds a router for reading transcripts without a connection.
func (f *Flags) NewRouter(logger zerolog.Logger) *chat.Router {
	return chat.NewRouter(f.SessionConfig().Router, f.Store, logger)
}
