package testsupport

import (
	"context"
	"sync"
	"time"

	"tagstation/internal/card"
)

// Detection is one scripted DetectCard outcome.
type Detection struct {
	UID card.UID
	Err error
}

// NoCard is a detection that finds nothing.
var NoCard = Detection{}

// BlockWrite records one WriteBlock call.
type BlockWrite struct {
	UID   card.UID
	Block int
	Data  card.BlockData
}

// FakeTransport is a scripted card.Transport with in-memory card blocks.
type FakeTransport struct {
	mu sync.Mutex

	InitErr    error
	Detections []Detection
	// OnExhausted runs once when DetectCard is called after the script ran out.
	OnExhausted func()

	Blocks     map[int]card.BlockData
	RejectAuth map[int]bool
	NoData     map[int]bool
	BlockErr   error

	InitCalls   int
	DetectCalls int
	AuthCalls   []int
	Writes      []BlockWrite
	Closed      bool

	exhaustedFired bool
}

// NewFakeTransport returns a transport that detects each uid once, in order.
func NewFakeTransport(detections ...Detection) *FakeTransport {
	return &FakeTransport{
		Detections: detections,
		Blocks:     make(map[int]card.BlockData),
		RejectAuth: make(map[int]bool),
		NoData:     make(map[int]bool),
	}
}

func (f *FakeTransport) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitCalls++
	return f.InitErr
}

func (f *FakeTransport) DetectCard(ctx context.Context, _ time.Duration) (card.UID, bool, error) {
	f.mu.Lock()
	f.DetectCalls++
	if len(f.Detections) == 0 {
		hook := f.OnExhausted
		fire := hook != nil && !f.exhaustedFired
		f.exhaustedFired = true
		f.mu.Unlock()
		if fire {
			hook()
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	next := f.Detections[0]
	f.Detections = f.Detections[1:]
	f.mu.Unlock()

	if next.Err != nil {
		return nil, false, next.Err
	}
	if next.UID == nil {
		return nil, false, nil
	}
	return next.UID, true, nil
}

func (f *FakeTransport) AuthenticateBlock(_ context.Context, _ card.UID, block int, slot card.KeySlot, key card.Key) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AuthCalls = append(f.AuthCalls, block)
	if f.BlockErr != nil {
		return false, f.BlockErr
	}
	if slot != card.KeySlotA || key != card.DefaultKeyA || f.RejectAuth[block] {
		return false, nil
	}
	return true, nil
}

func (f *FakeTransport) ReadBlock(_ context.Context, _ card.UID, block int) (card.BlockData, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NoData[block] {
		return card.BlockData{}, false, nil
	}
	return f.Blocks[block], true, nil
}

func (f *FakeTransport) WriteBlock(_ context.Context, uid card.UID, block int, data card.BlockData) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NoData[block] {
		return false, nil
	}
	f.Writes = append(f.Writes, BlockWrite{UID: append(card.UID(nil), uid...), Block: block, Data: data})
	f.Blocks[block] = data
	return true, nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Remaining reports how many scripted detections have not been consumed.
func (f *FakeTransport) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Detections)
}
