package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateReader(); err != nil {
		return err
	}
	if err := c.validateStation(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateDisplay(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateReader() error {
	if c.Reader.Device == "" {
		return fmt.Errorf("reader.device must be set (or export %s)", readerDeviceEnv)
	}
	if c.Reader.PollIntervalMs < minimumPollIntervalMillis || c.Reader.PollIntervalMs > maxPollIntervalMillis {
		return fmt.Errorf("reader.poll_interval_ms must be between %d and %d", minimumPollIntervalMillis, maxPollIntervalMillis)
	}
	if c.Reader.ResponseTimeoutMs < minimumResponseTimeoutMsec || c.Reader.ResponseTimeoutMs > maxResponseTimeoutMillis {
		return fmt.Errorf("reader.response_timeout_ms must be between %d and %d", minimumResponseTimeoutMsec, maxResponseTimeoutMillis)
	}
	return nil
}

func (c *Config) validateStation() error {
	if !slices.Contains(StationModes, c.Station.Mode) {
		return fmt.Errorf("station.mode: unsupported value %q (expected one of %s)", c.Station.Mode, strings.Join(StationModes, ", "))
	}
	if strings.ContainsAny(c.Station.Name, `/\`) {
		return errors.New("station.name must not contain path separators")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.Path == "" {
		return errors.New("catalog.path must be set")
	}
	return nil
}

func (c *Config) validateDisplay() error {
	if _, err := language.Parse(c.Display.Locale); err != nil {
		return fmt.Errorf("display.locale: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
