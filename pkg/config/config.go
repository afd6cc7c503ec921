package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	DB      DBConfig      `yaml:"db"`
	Server  ServerConfig  `yaml:"server"`
	Request RequestConfig `yaml:"request"`
	GPS     GPSConfig     `yaml:"gps"`
	Map     MapConfig     `yaml:"map"`
	Focus   FocusConfig   `yaml:"focus"`
	Home    HomeConfig    `yaml:"home"`
	Debug   DebugConfig   `yaml:"debug"`
	Window  WindowConfig  `yaml:"window"`
}

// Map source modes.
const (
	MapModeOffline  = "offline"
	MapModeDownload = "download"
)

// GPS source kinds.
const (
	GPSSourceGPSD   = "gpsd"
	GPSSourceReplay = "replay"
	GPSSourceNone   = "none"
)

// Focus policies.
const (
	PolicyAgeWindow    = "age_window"
	PolicySecondRecent = "second_recent"
)

// RequestConfig holds settings for outgoing tile downloads.
type RequestConfig struct {
	Retries   int           `yaml:"retries"`
	Timeout   Duration      `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Backoff   BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// GPSConfig selects and configures the location source.
type GPSConfig struct {
	Source   string       `yaml:"source"` // "gpsd", "replay", "none"
	GPSDAddr string       `yaml:"gpsd_addr"`
	Buffer   int          `yaml:"buffer"`
	Replay   ReplayConfig `yaml:"replay"`
}

// ReplayConfig drives the GPX replay source.
type ReplayConfig struct {
	File     string   `yaml:"file"`
	Speed    float64  `yaml:"speed"`
	Interval Duration `yaml:"interval"` // used when the track has no timestamps
	Loop     bool     `yaml:"loop"`
}

// MapConfig holds the map data source.
type MapConfig struct {
	Mode     string `yaml:"mode"` // "offline", "download"
	MBTiles  string `yaml:"mbtiles"`
	TileURL  string `yaml:"tile_url"`
	Coverage string `yaml:"coverage_shapefile"`
	TileSize int    `yaml:"tile_size"` // 0 picks the mode default
	ZoomMin  int    `yaml:"zoom_min"`
	ZoomMax  int    `yaml:"zoom_max"`
	CacheDir string `yaml:"cache_dir"` // empty creates a fresh temp dir per run
}

// FocusConfig tunes the auto-focus pass.
type FocusConfig struct {
	Policy            string   `yaml:"policy"`
	AgeThreshold      Duration `yaml:"age_threshold"`
	AgeWindowDelta    float64  `yaml:"age_window_delta"`
	SecondRecentDelta float64  `yaml:"second_recent_delta"`
	Animate           bool     `yaml:"animate"`
	SaveInterval      Duration `yaml:"save_interval"`
}

// HomeConfig is the fixed anchor every focus pass centers on.
type HomeConfig struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// DebugConfig holds the debug overlay settings.
type DebugConfig struct {
	Overlay      bool `yaml:"overlay"`
	H3Resolution int  `yaml:"h3_resolution"`
}

// WindowConfig sizes the desktop shell.
type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address  string `yaml:"address"`
	MaxConns int    `yaml:"max_conns"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/carnav.db",
		},
		Server: ServerConfig{
			Address:  "localhost:1921",
			MaxConns: 32,
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		GPS: GPSConfig{
			Source:   GPSSourceGPSD,
			GPSDAddr: "127.0.0.1:2947",
			Buffer:   64,
			Replay: ReplayConfig{
				Speed:    1.0,
				Interval: Duration(1 * time.Second),
				Loop:     true,
			},
		},
		Map: MapConfig{
			Mode:    MapModeDownload,
			MBTiles: "./data/map.mbtiles",
			TileURL: "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
			ZoomMin: 0,
			ZoomMax: 18,
		},
		Focus: FocusConfig{
			Policy:            PolicyAgeWindow,
			AgeThreshold:      Duration(1000 * time.Millisecond),
			AgeWindowDelta:    0.02,
			SecondRecentDelta: 0.1,
			Animate:           true,
			SaveInterval:      Duration(30 * time.Second),
		},
		Home: HomeConfig{
			Name: "Xujiahui",
			Lat:  31.191340,
			Lon:  121.445790,
		},
		Debug: DebugConfig{
			Overlay:      false,
			H3Resolution: 9,
		},
		Window: WindowConfig{
			Title:  "carnav",
			Width:  1024,
			Height: 768,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk.
// Environment overrides are applied last and never written to the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enum fields and ranges.
func (c *Config) Validate() error {
	var errs []error

	switch c.Map.Mode {
	case MapModeOffline:
		if c.Map.MBTiles == "" {
			errs = append(errs, errors.New("map.mbtiles is required in offline mode"))
		}
	case MapModeDownload:
		if c.Map.TileURL == "" {
			errs = append(errs, errors.New("map.tile_url is required in download mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("map.mode %q: must be %s or %s", c.Map.Mode, MapModeOffline, MapModeDownload))
	}
	if c.Map.ZoomMin < 0 || c.Map.ZoomMax < c.Map.ZoomMin || c.Map.ZoomMax > 30 {
		errs = append(errs, fmt.Errorf("map zoom range [%d,%d] invalid", c.Map.ZoomMin, c.Map.ZoomMax))
	}
	if c.Map.TileSize < 0 {
		errs = append(errs, fmt.Errorf("map.tile_size %d must not be negative", c.Map.TileSize))
	}

	switch c.GPS.Source {
	case GPSSourceGPSD, GPSSourceNone:
	case GPSSourceReplay:
		if c.GPS.Replay.File == "" {
			errs = append(errs, errors.New("gps.replay.file is required for replay source"))
		}
	default:
		errs = append(errs, fmt.Errorf("gps.source %q: must be gpsd, replay or none", c.GPS.Source))
	}

	if !ValidPolicy(c.Focus.Policy) {
		errs = append(errs, fmt.Errorf("focus.policy %q: must be %s or %s", c.Focus.Policy, PolicyAgeWindow, PolicySecondRecent))
	}
	if c.Focus.AgeThreshold < 0 {
		errs = append(errs, errors.New("focus.age_threshold must not be negative"))
	}

	if c.Home.Lat < -90 || c.Home.Lat > 90 || c.Home.Lon < -180 || c.Home.Lon > 180 {
		errs = append(errs, fmt.Errorf("home (%f,%f) out of range", c.Home.Lat, c.Home.Lon))
	}
	if c.Debug.H3Resolution < 0 || c.Debug.H3Resolution > 15 {
		errs = append(errs, fmt.Errorf("debug.h3_resolution %d out of range [0,15]", c.Debug.H3Resolution))
	}

	return errors.Join(errs...)
}

// ValidPolicy reports whether name is a known focus policy.
func ValidPolicy(name string) bool {
	return name == PolicyAgeWindow || name == PolicySecondRecent
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# carnav configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
# Environment overrides: CARNAV_GPSD_ADDR, CARNAV_TILE_URL, CARNAV_SERVER_ADDR

`)
	data = append(header, data...)

	// Inject comments for enum fields.
	reMode := regexp.MustCompile(`(?m)^(\s+)mode:`)
	data = reMode.ReplaceAll(data, []byte("${1}# Options: offline (mbtiles file), download (tile_url)\n${1}mode:"))

	reSource := regexp.MustCompile(`(?m)^(\s+)source:`)
	data = reSource.ReplaceAll(data, []byte("${1}# Options: gpsd, replay, none\n${1}source:"))

	rePolicy := regexp.MustCompile(`(?m)^(\s+)policy:`)
	data = rePolicy.ReplaceAll(data, []byte("${1}# Options: age_window, second_recent\n${1}policy:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
