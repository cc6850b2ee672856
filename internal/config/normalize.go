package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeReader()
	c.normalizeStation()
	if err := c.normalizeLabel(); err != nil {
		return err
	}
	c.normalizeDisplay()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockDir) == "" {
		c.Paths.LockDir = filepath.Join(c.Paths.DataDir, "locks")
	}
	if c.Paths.LockDir, err = expandPath(c.Paths.LockDir); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() error {
	var err error
	if strings.TrimSpace(c.Catalog.Path) == "" {
		c.Catalog.Path = filepath.Join(c.Paths.DataDir, defaultCatalogFile)
	}
	if c.Catalog.Path, err = expandPath(strings.TrimSpace(c.Catalog.Path)); err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeReader() {
	if value, ok := os.LookupEnv(readerDeviceEnv); ok && strings.TrimSpace(value) != "" {
		c.Reader.Device = value
	}
	c.Reader.Device = strings.TrimSpace(c.Reader.Device)
	if c.Reader.Baud <= 0 {
		c.Reader.Baud = defaultReaderBaud
	}
	if c.Reader.PollIntervalMs <= 0 {
		c.Reader.PollIntervalMs = defaultPollIntervalMillis
	}
	if c.Reader.ResponseTimeoutMs <= 0 {
		c.Reader.ResponseTimeoutMs = defaultResponseTimeoutMs
	}
	if c.Reader.WaitSeconds < 0 {
		c.Reader.WaitSeconds = defaultDeviceWaitSeconds
	}
}

func (c *Config) normalizeStation() {
	c.Station.Mode = strings.ToLower(strings.TrimSpace(c.Station.Mode))
	if c.Station.Mode == "" {
		c.Station.Mode = defaultStationMode
	}
	c.Station.Name = strings.TrimSpace(c.Station.Name)
	if c.Station.Name == "" {
		c.Station.Name = defaultStationName
	}
}

func (c *Config) normalizeLabel() error {
	var err error
	if strings.TrimSpace(c.Label.OutputDir) == "" {
		c.Label.OutputDir = defaultLabelDir
	}
	if c.Label.OutputDir, err = expandPath(c.Label.OutputDir); err != nil {
		return fmt.Errorf("label.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDisplay() {
	c.Display.Locale = strings.TrimSpace(c.Display.Locale)
	if c.Display.Locale == "" {
		c.Display.Locale = defaultDisplayLocale
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
