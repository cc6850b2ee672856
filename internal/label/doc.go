// Package label renders bottle labels as QR code PNG files.
package label
