// Package config loads, normalizes, and validates tagstation configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TAGSTATION_READER_DEVICE. The Config type centralizes every knob the station
// runner and CLI need, so the catalog location, the reader device, and the
// label output directory are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
