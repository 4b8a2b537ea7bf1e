package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/olivoil/livewatch/internal/files"
)

// AppName is used for config and state directory names.
const AppName = "livewatch"

// Config is the resolved livewatch configuration.
type Config struct {
	View  ViewConfig
	Watch WatchConfig
	Log   LogConfig
}

// ViewConfig holds display settings.
type ViewConfig struct {
	Mode     files.ViewMode
	WordWrap bool
	TabWidth int
	Theme    string // optional path to a colors TOML file
}

// WatchConfig holds pipeline and reconciler settings.
type WatchConfig struct {
	UpdateBuffer    int
	LogBuffer       int
	Workers         int
	RenameWindow    time.Duration
	Tick            time.Duration
	Ignore          []string
	AutoTrack       bool
	RebindSelection bool
}

// tomlConfig mirrors the TOML file layout.
type tomlConfig struct {
	View struct {
		Mode     string `toml:"mode"`
		WordWrap *bool  `toml:"word_wrap"`
		TabWidth int    `toml:"tab_width"`
		Theme    string `toml:"theme"`
	} `toml:"view"`
	Watch struct {
		UpdateBuffer    int      `toml:"update_buffer"`
		LogBuffer       int      `toml:"log_buffer"`
		Workers         int      `toml:"workers"`
		RenameWindowMS  int      `toml:"rename_window_ms"`
		TickMS          int      `toml:"tick_ms"`
		Ignore          []string `toml:"ignore"`
		AutoTrack       *bool    `toml:"auto_track"`
		RebindSelection *bool    `toml:"rebind_selection"`
	} `toml:"watch"`
	Log struct {
		File  string `toml:"file"`
		Level string `toml:"level"`
	} `toml:"log"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		View: ViewConfig{
			Mode:     files.ViewWhole,
			WordWrap: true,
			TabWidth: 4,
		},
		Watch: WatchConfig{
			UpdateBuffer:    2,
			LogBuffer:       32,
			Workers:         8,
			RenameWindow:    100 * time.Millisecond,
			Tick:            50 * time.Millisecond,
			Ignore:          []string{".git"},
			RebindSelection: true,
		},
		Log: LogConfig{
			File:  DefaultLogPath(),
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	if p := os.Getenv("LIVEWATCH_CONFIG"); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, AppName, "config.toml")
}

// DefaultLogPath returns where the structured log is written.
func DefaultLogPath() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, _ := os.UserHomeDir()
		stateDir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateDir, AppName, AppName+".log")
}

// ReadConfigFile reads the TOML config at path over the defaults. A missing
// file is not an error.
func ReadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	var tc tomlConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if tc.View.Mode != "" {
		mode, err := files.ParseViewMode(tc.View.Mode)
		if err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
		cfg.View.Mode = mode
	}
	if tc.View.WordWrap != nil {
		cfg.View.WordWrap = *tc.View.WordWrap
	}
	if tc.View.TabWidth > 0 {
		cfg.View.TabWidth = tc.View.TabWidth
	}
	cfg.View.Theme = expandHome(tc.View.Theme)

	if tc.Watch.UpdateBuffer > 0 {
		cfg.Watch.UpdateBuffer = tc.Watch.UpdateBuffer
	}
	if tc.Watch.LogBuffer > 0 {
		cfg.Watch.LogBuffer = tc.Watch.LogBuffer
	}
	if tc.Watch.Workers > 0 {
		cfg.Watch.Workers = tc.Watch.Workers
	}
	if tc.Watch.RenameWindowMS > 0 {
		cfg.Watch.RenameWindow = time.Duration(tc.Watch.RenameWindowMS) * time.Millisecond
	}
	if tc.Watch.TickMS > 0 {
		cfg.Watch.Tick = time.Duration(tc.Watch.TickMS) * time.Millisecond
	}
	if tc.Watch.Ignore != nil {
		cfg.Watch.Ignore = tc.Watch.Ignore
	}
	if tc.Watch.AutoTrack != nil {
		cfg.Watch.AutoTrack = *tc.Watch.AutoTrack
	}
	if tc.Watch.RebindSelection != nil {
		cfg.Watch.RebindSelection = *tc.Watch.RebindSelection
	}

	if tc.Log.File != "" {
		cfg.Log.File = expandHome(tc.Log.File)
	}
	if tc.Log.Level != "" {
		cfg.Log.Level = tc.Log.Level
	}
	return cfg, nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
