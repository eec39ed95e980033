package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultServerURL      = "http://127.0.0.1:4096"
	defaultFlushInterval  = 16 * time.Millisecond
	defaultNotifyInterval = 50 * time.Millisecond
	defaultQueueBound     = 4096
	defaultLogLevel       = "info"
)

type Settings struct {
	Server Server `toml:"server"`
	Sync   Sync   `toml:"sync"`
	Log    Log    `toml:"log"`
}

type Server struct {
	URL string `toml:"url"`
}

type Sync struct {
	// FlushIntervalMS is the frame budget: events arriving within one
	// interval are coalesced into a single store write.
	FlushIntervalMS int `toml:"flush_interval_ms"`
	// NotifyIntervalMS throttles how often streaming-part updates are
	// surfaced to subscribers.
	NotifyIntervalMS int `toml:"notify_interval_ms"`
	// QueueBound caps the non-coalescable pending queue; oldest entries are
	// dropped beyond it.
	QueueBound int `toml:"queue_bound"`
}

type Log struct {
	Level string `toml:"level"`
}

func Default() Settings {
	return Settings{
		Server: Server{URL: defaultServerURL},
		Sync: Sync{
			FlushIntervalMS:  int(defaultFlushInterval / time.Millisecond),
			NotifyIntervalMS: int(defaultNotifyInterval / time.Millisecond),
			QueueBound:       defaultQueueBound,
		},
		Log: Log{Level: defaultLogLevel},
	}
}

func (s Settings) FlushInterval() time.Duration {
	if s.Sync.FlushIntervalMS <= 0 {
		return defaultFlushInterval
	}
	return time.Duration(s.Sync.FlushIntervalMS) * time.Millisecond
}

func (s Settings) NotifyInterval() time.Duration {
	if s.Sync.NotifyIntervalMS <= 0 {
		return defaultNotifyInterval
	}
	return time.Duration(s.Sync.NotifyIntervalMS) * time.Millisecond
}

func (s Settings) QueueBound() int {
	if s.Sync.QueueBound <= 0 {
		return defaultQueueBound
	}
	return s.Sync.QueueBound
}

func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(home) == "" {
		return "", errors.New("home directory not found")
	}
	return filepath.Join(home, ".palot", "config.toml"), nil
}

// Load reads the user settings file, applying defaults for anything unset.
// A missing file is not an error.
func Load() (Settings, error) {
	path, err := Path()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(path)
}

func LoadFrom(path string) (Settings, error) {
	settings := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, err
	}
	if err := toml.Unmarshal(data, &settings); err != nil {
		return Default(), err
	}
	if strings.TrimSpace(settings.Server.URL) == "" {
		settings.Server.URL = defaultServerURL
	}
	settings.Server.URL = strings.TrimRight(settings.Server.URL, "/")
	if strings.TrimSpace(settings.Log.Level) == "" {
		settings.Log.Level = defaultLogLevel
	}
	return settings, nil
}
