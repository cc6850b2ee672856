//go:build !linux

package pn532

import "errors"

// OpenSerial is only available on Linux.
func OpenSerial(device string, baud int) (Port, error) {
	return nil, errors.New("pn532: serial transport requires linux")
}
