package label

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"tagstation/internal/catalog"
	"tagstation/internal/faults"
)

const (
	component = "label"

	// PixelsPerModule is the edge length of one QR module in the PNG.
	PixelsPerModule = 10
	// TaggedAtLayout renders tagging times inside the payload.
	TaggedAtLayout = "2006-01-02 15:04:05"
	untaggedText   = "None"
)

// Encoder writes a payload to an image file.
type Encoder interface {
	Encode(payload, dest string) error
}

// QREncoder encodes payloads as QR codes with the smallest symbol version
// that fits, error correction level L, and the standard four module border.
type QREncoder struct {
	level      qrcode.RecoveryLevel
	moduleSize int
}

var _ Encoder = (*QREncoder)(nil)

// NewQREncoder returns the label encoder used by every station.
func NewQREncoder() *QREncoder {
	return &QREncoder{level: qrcode.Low, moduleSize: PixelsPerModule}
}

// Encode renders payload and replaces dest atomically.
func (e *QREncoder) Encode(payload, dest string) error {
	code, err := qrcode.New(payload, e.level)
	if err != nil {
		return faults.Wrap(faults.ErrEncode, component, "encode", "build qr code", err)
	}
	png, err := code.PNG(-e.moduleSize)
	if err != nil {
		return faults.Wrap(faults.ErrEncode, component, "encode", "render png", err)
	}
	if err := writeFileAtomic(dest, png); err != nil {
		return faults.Wrap(faults.ErrEncode, component, "encode", "write "+dest, err)
	}
	return nil
}

func writeFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return err
	}
	return nil
}

// Payload builds the label text for a bottle.
func Payload(recipe catalog.RecipeID, bottle catalog.BottleID, taggedAt *time.Time) string {
	return fmt.Sprintf("Rezept_ID: %d, Flaschen_ID: %d, Tagged_Date: %s", recipe, bottle, FormatTaggedAt(taggedAt))
}

// FormatTaggedAt renders a tagging time in UTC, or None when unset.
func FormatTaggedAt(taggedAt *time.Time) string {
	if taggedAt == nil {
		return untaggedText
	}
	return taggedAt.UTC().Format(TaggedAtLayout)
}

// PathFor returns the label file for a bottle inside dir.
func PathFor(dir string, bottle catalog.BottleID) string {
	return filepath.Join(dir, fmt.Sprintf("qrcode_%d.png", bottle))
}
