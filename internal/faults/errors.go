package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport marks link or firmware failures of the card reader.
	ErrTransport = errors.New("transport fault")
	// ErrNotPresent marks a poll that found no card. It is expected, not fatal.
	ErrNotPresent = errors.New("card not present")
	// ErrAuthRejected marks a block authentication the card refused.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrBlockAccess marks a block read or write that did not complete.
	ErrBlockAccess = errors.New("block access failed")
	// ErrStore marks catalog query or update failures.
	ErrStore = errors.New("store fault")
	// ErrEncode marks label generation failures.
	ErrEncode = errors.New("encode fault")
	// ErrConfiguration marks invalid station wiring or settings.
	ErrConfiguration = errors.New("configuration error")
)

// Kind names the class of a fault.
type Kind string

const (
	KindNone          Kind = ""
	KindTransport     Kind = "transport"
	KindNotPresent    Kind = "not_present"
	KindAuthRejected  Kind = "auth_rejected"
	KindBlockAccess   Kind = "block_access"
	KindStore         Kind = "store"
	KindEncode        Kind = "encode"
	KindConfiguration Kind = "configuration"
	KindUnknown       Kind = "unknown"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker. The marker should be one of the exported
// sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf reports the classification of err. Authentication rejections are
// checked before block access so a wrapped rejection keeps its finer kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotPresent):
		return KindNotPresent
	case errors.Is(err, ErrAuthRejected):
		return KindAuthRejected
	case errors.Is(err, ErrBlockAccess):
		return KindBlockAccess
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrStore):
		return KindStore
	case errors.Is(err, ErrEncode):
		return KindEncode
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindUnknown
	}
}

// Recoverable reports whether a fault raised while accessing a card should
// send the station back to waiting for a new card rather than failing.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindNotPresent, KindAuthRejected, KindBlockAccess, KindTransport:
		return true
	default:
		return false
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "station failure"
	}
	return strings.Join(parts, ": ")
}
