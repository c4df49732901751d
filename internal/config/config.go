package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// CameraConfig describes how the external capture tool is invoked
// and how the resulting files are named.
type CameraConfig struct {
	Tool           string `yaml:"tool"`            // capture utility, e.g. "gphoto2"
	FilenamePrefix string `yaml:"filename_prefix"` // e.g. "photo_"
	FilenameExt    string `yaml:"filename_ext"`    // e.g. ".jpg"
	OutputDir      string `yaml:"output_dir"`      // "" = current working directory
}

// SeriesConfig holds the timed photo series settings.
type SeriesConfig struct {
	DataDir      string  `yaml:"data_dir"`      // parent of series_* session folders
	TotalPhotos  int     `yaml:"total_photos"`  // number of photos in a series
	TotalMinutes float64 `yaml:"total_minutes"` // total shooting time
}

// ScheduleConfig configures recurring captures.
type ScheduleConfig struct {
	Cron string `yaml:"cron"` // standard 5-field expression or descriptor; "" = disabled
}

// TimelapseConfig holds the video encoder settings.
type TimelapseConfig struct {
	Tool   string `yaml:"tool"`   // encoder, e.g. "ffmpeg"
	FPS    int    `yaml:"fps"`    // frames per second of the video
	CRF    int    `yaml:"crf"`    // x264 quality, 0 (best) to 51
	Output string `yaml:"output"` // video file name inside the series folder
}

// IndicatorConfig describes the optional status LED.
type IndicatorConfig struct {
	Pin        int `yaml:"pin"`         // BCM pin. 0 = no LED.
	BlinkCount int `yaml:"blink_count"` // blinks on failure
	BlinkMs    int `yaml:"blink_ms"`    // on/off time of a blink (ms)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Series    SeriesConfig    `yaml:"series"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Timelapse TimelapseConfig `yaml:"timelapse"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// Environment variables applied on top of the YAML file.
const (
	EnvTool       = "SNAPGO_TOOL"
	EnvOutputDir  = "SNAPGO_OUTPUT_DIR"
	EnvDebugLevel = "SNAPGO_DEBUG_LEVEL"
	EnvCron       = "SNAPGO_CRON"
	EnvFFmpeg     = "SNAPGO_FFMPEG"
)

// MinSeriesInterval is the shortest allowed gap between two series shots.
// Filenames have one-second resolution.
const MinSeriesInterval = time.Second

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{Defaults: DefaultsConfig{MockGPIO: true}}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Config{Defaults: DefaultsConfig{MockGPIO: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	return finish(&cfg)
}

// LoadOrDefault behaves like Load, but returns Default() with environment
// overrides when path does not exist and required is false.
func LoadOrDefault(path string, required bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if required || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv loads .env (if present) and applies SNAPGO_* overrides.
// Variables already set in the process environment take precedence over .env.
func applyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if v := os.Getenv(EnvTool); v != "" {
		cfg.Camera.Tool = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		cfg.Camera.OutputDir = v
	}
	if v := os.Getenv(EnvCron); v != "" {
		cfg.Schedule.Cron = v
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		cfg.Timelapse.Tool = v
	}
	if v := os.Getenv(EnvDebugLevel); v != "" {
		lvl, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebugLevel, err)
		}
		cfg.Defaults.DebugLevel = lvl
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Camera.Tool == "" {
		cfg.Camera.Tool = "gphoto2"
	}
	if cfg.Camera.FilenamePrefix == "" {
		cfg.Camera.FilenamePrefix = "photo_"
	}
	if cfg.Camera.FilenameExt == "" {
		cfg.Camera.FilenameExt = ".jpg"
	}
	if cfg.Series.DataDir == "" {
		cfg.Series.DataDir = "data"
	}
	if cfg.Series.TotalPhotos == 0 {
		cfg.Series.TotalPhotos = 24
	}
	if cfg.Series.TotalMinutes == 0 {
		cfg.Series.TotalMinutes = 5
	}
	if cfg.Timelapse.Tool == "" {
		cfg.Timelapse.Tool = "ffmpeg"
	}
	if cfg.Timelapse.FPS == 0 {
		cfg.Timelapse.FPS = 24
	}
	if cfg.Timelapse.CRF == 0 {
		cfg.Timelapse.CRF = 23
	}
	if cfg.Timelapse.Output == "" {
		cfg.Timelapse.Output = "timelapse.mp4"
	}
	if cfg.Indicator.BlinkCount <= 0 {
		cfg.Indicator.BlinkCount = 3
	}
	if cfg.Indicator.BlinkMs <= 0 {
		cfg.Indicator.BlinkMs = 200 // 200ms on, 200ms off
	}
}

// Validate checks value ranges after defaults have been applied.
func (c *Config) Validate() error {
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Indicator.Pin < 0 {
		return fmt.Errorf("indicator.pin must be >= 0, got %d", c.Indicator.Pin)
	}
	if err := ValidateSeries(c.Series.TotalPhotos, c.Series.TotalMinutes); err != nil {
		return err
	}
	if c.Timelapse.FPS < 1 || c.Timelapse.FPS > 240 {
		return fmt.Errorf("timelapse.fps must be between 1 and 240, got %d", c.Timelapse.FPS)
	}
	if c.Timelapse.CRF < 0 || c.Timelapse.CRF > 51 {
		return fmt.Errorf("timelapse.crf must be between 0 and 51, got %d", c.Timelapse.CRF)
	}
	if c.Timelapse.Output != filepath.Base(c.Timelapse.Output) {
		return fmt.Errorf("timelapse.output must be a file name, got %q", c.Timelapse.Output)
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron %q: %w", c.Schedule.Cron, err)
		}
	}
	return nil
}

// ValidateSeries checks series parameters: at least one photo, a positive
// duration, and an interval of at least MinSeriesInterval.
func ValidateSeries(totalPhotos int, totalMinutes float64) error {
	if totalPhotos < 1 {
		return fmt.Errorf("total_photos must be >= 1, got %d", totalPhotos)
	}
	if !(totalMinutes > 0) || totalMinutes > 7*24*60 {
		return fmt.Errorf("total_minutes must be between 0 and 10080, got %g", totalMinutes)
	}
	interval := minutes(totalMinutes) / time.Duration(totalPhotos)
	if interval < MinSeriesInterval {
		return fmt.Errorf("series interval %v is shorter than %v (%d photos in %g minutes)",
			interval, MinSeriesInterval, totalPhotos, totalMinutes)
	}
	return nil
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// SeriesDuration returns the total shooting time of a series.
func (c *Config) SeriesDuration() time.Duration {
	return minutes(c.Series.TotalMinutes)
}

// SeriesInterval returns the delay between two series shots.
func (c *Config) SeriesInterval() time.Duration {
	return c.SeriesDuration() / time.Duration(c.Series.TotalPhotos)
}

// BlinkDelay returns the on/off time of an indicator blink.
func (c *Config) BlinkDelay() time.Duration {
	return time.Duration(c.Indicator.BlinkMs) * time.Millisecond
}
