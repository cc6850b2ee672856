package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tagstation/internal/card"
	"tagstation/internal/catalog"
	"tagstation/internal/config"
	"tagstation/internal/hotplug"
	"tagstation/internal/logging"
	"tagstation/internal/pn532"
)

// newTransport builds the reader transport; tests replace it.
var newTransport = func(cfg *config.Config, logger *slog.Logger) card.Transport {
	return pn532.New(pn532.Options{
		Device:          cfg.Reader.Device,
		Baud:            cfg.Reader.Baud,
		ResponseTimeout: cfg.ResponseTimeout(),
	}, logger)
}

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

// newLogger writes console output to the command's stderr so stdout only
// carries results.
func (c *commandContext) newLogger(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func (c *commandContext) withCatalog(cmd *cobra.Command, fn func(*config.Config, *catalog.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := catalog.Open(cmd.Context(), cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func waitForReader(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.Reader.WaitForDevice {
		return nil
	}
	return hotplug.NewWaiter(cfg.Reader.Device, logger).Wait(ctx, cfg.DeviceWait())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
