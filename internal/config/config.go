package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	LockDir string `toml:"lock_dir"`
}

// Catalog contains the location of the bottle and recipe database.
type Catalog struct {
	Path string `toml:"path"`
}

// Reader contains configuration for the contactless card reader.
type Reader struct {
	Device            string `toml:"device"`
	Baud              int    `toml:"baud"`
	PollIntervalMs    int    `toml:"poll_interval_ms"`
	ResponseTimeoutMs int    `toml:"response_timeout_ms"`
	// WaitForDevice blocks Init until the device node appears via udev.
	WaitForDevice bool `toml:"wait_for_device"`
	// WaitSeconds bounds the udev wait; 0 waits until cancelled.
	WaitSeconds int `toml:"wait_seconds"`
}

// Station selects which station preset the controller runs.
type Station struct {
	Mode string `toml:"mode"`
	Name string `toml:"name"`
	Loop bool   `toml:"loop"`
}

// Label contains configuration for QR label artifacts.
type Label struct {
	OutputDir string `toml:"output_dir"`
}

// Display contains presentation settings for CLI output.
type Display struct {
	Locale string `toml:"locale"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tagstation.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and lock directories
//   - Catalog: SQLite database file
//   - Reader: card reader device and polling
//   - Station: station preset and loop behaviour
//   - Label: QR label output directory
//   - Display: locale for CLI number formatting
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Catalog Catalog `toml:"catalog"`
	Reader  Reader  `toml:"reader"`
	Station Station `toml:"station"`
	Label   Label   `toml:"label"`
	Display Display `toml:"display"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPathTemplate)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPathTemplate)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigFileName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for station operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.LockDir, filepath.Dir(c.Catalog.Path)}
	if c.Station.Mode == "label" {
		dirs = append(dirs, c.Label.OutputDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the card detection timeout used per AwaitCard poll.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Reader.PollIntervalMs) * time.Millisecond
}

// ResponseTimeout returns how long the reader may take to answer a command.
func (c *Config) ResponseTimeout() time.Duration {
	return time.Duration(c.Reader.ResponseTimeoutMs) * time.Millisecond
}

// DeviceWait returns the bound for waiting on reader hotplug; 0 means unbounded.
func (c *Config) DeviceWait() time.Duration {
	return time.Duration(c.Reader.WaitSeconds) * time.Second
}

// LogFilePath returns the station log file inside the log directory.
func (c *Config) LogFilePath() string {
	name := c.Station.Name
	if name == "" {
		name = defaultStationName
	}
	return filepath.Join(c.Paths.LogDir, name+".log")
}

// ReaderLockPath returns the lock file guarding exclusive use of the reader.
func (c *Config) ReaderLockPath() string {
	base := strings.ReplaceAll(strings.TrimPrefix(c.Reader.Device, "/"), "/", "_")
	if base == "" {
		base = "reader"
	}
	return filepath.Join(c.Paths.LockDir, base+".lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
