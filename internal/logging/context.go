package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStation is the standardized key for the configured station name.
	FieldStation = "station"
	// FieldRunID is the standardized key for one controller cycle.
	FieldRunID = "run_id"
	// FieldState is the standardized key for the controller state.
	FieldState = "state"
	// FieldBottleID is the standardized key for bottle identifiers.
	FieldBottleID = "bottle_id"
	// FieldUID is the standardized key for card UIDs rendered as hex.
	FieldUID = "uid"
	// FieldBlock is the standardized key for card block indices.
	FieldBlock = "block"
	// FieldEventType classifies log lines for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	stationKey contextKey = "station"
	runIDKey   contextKey = "run_id"
)

// WithStation annotates context with the station name.
func WithStation(ctx context.Context, station string) context.Context {
	if station == "" {
		return ctx
	}
	return context.WithValue(ctx, stationKey, station)
}

// StationFromContext returns the station name if present.
func StationFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(stationKey).(string)
	return v, ok && v != ""
}

// WithRunID annotates context with the controller cycle identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the cycle identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	return v, ok && v != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if station, ok := StationFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStation, station))
	}
	if runID, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, runID))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
