package card

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// BlockCount is the number of addressable blocks on a supported card.
	BlockCount = 64
	// BlockSize is the length of one block in bytes.
	BlockSize = 16
	// BottleIDBlock holds the bottle identifier at byte offset 0.
	BottleIDBlock = 2
)

// UID identifies a physical card for the duration of one detection event.
type UID []byte

// String renders the UID as lower-case hex bytes separated by colons.
func (u UID) String() string {
	if len(u) == 0 {
		return ""
	}
	parts := make([]string, len(u))
	for i, b := range u {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, ":")
}

// Valid reports whether the UID has a length real cards use.
func (u UID) Valid() bool {
	return len(u) >= 4 && len(u) <= 10
}

// BlockData is the unit of card read/write.
type BlockData [BlockSize]byte

// Hex renders the block as space separated hex bytes.
func (b BlockData) Hex() string {
	parts := make([]string, BlockSize)
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}

// Key is a six byte sector key.
type Key [6]byte

// KeySlot selects which sector key an authentication uses. The value is the
// MIFARE authentication command for that slot.
type KeySlot byte

// KeySlotA is the only slot stations authenticate with.
const KeySlotA KeySlot = 0x60

// DefaultKeyA is the factory transport key for key slot A.
var DefaultKeyA = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ValidBlock reports whether block addresses one of the card's blocks.
func ValidBlock(block int) bool {
	return block >= 0 && block < BlockCount
}

// EncodeBottleID builds the tagging payload: the id at offset 0, the rest zero.
func EncodeBottleID(id uint8) BlockData {
	var data BlockData
	data[0] = id
	return data
}

// DecodeBottleID extracts the bottle id from a tagging payload.
func DecodeBottleID(data BlockData) uint8 {
	return data[0]
}

// Transport is the capability a card reader driver offers. Implementations
// are used from a single goroutine.
type Transport interface {
	// Initialize opens the link and configures the chip. It is called once
	// per acquisition, before any other operation.
	Initialize(ctx context.Context) error
	// DetectCard polls for a card for up to timeout. A false result with a
	// nil error means no card was present.
	DetectCard(ctx context.Context, timeout time.Duration) (UID, bool, error)
	// AuthenticateBlock authenticates block with the key in slot. A false
	// result with a nil error means the card rejected the key.
	AuthenticateBlock(ctx context.Context, uid UID, block int, slot KeySlot, key Key) (bool, error)
	// ReadBlock reads an authenticated block. A false result means the card
	// did not return data.
	ReadBlock(ctx context.Context, uid UID, block int) (BlockData, bool, error)
	// WriteBlock writes an authenticated block. A false result means the card
	// did not acknowledge the write.
	WriteBlock(ctx context.Context, uid UID, block int, data BlockData) (bool, error)
	// Close releases the link.
	Close() error
}
