package pn532

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tagstation/internal/card"
	"tagstation/internal/faults"
)

type fakePort struct {
	mu      sync.Mutex
	replies [][]byte
	readBuf []byte
	frames  [][]byte
	aborts  int
	closed  bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case bytes.Equal(b, ackFrame):
		p.aborts++
	case len(b) > 3 && b[0] == 0x00 && b[1] == 0x00 && b[2] == 0xFF:
		p.frames = append(p.frames, append([]byte(nil), b...))
		if len(p.replies) > 0 {
			p.readBuf = append(p.readBuf, p.replies[0]...)
			p.replies = p.replies[1:]
		}
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.readBuf) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.readBuf)
	p.readBuf = p.readBuf[n:]
	p.mu.Unlock()
	return n, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func response(code byte, data ...byte) []byte {
	body := append([]byte{pn532ToHost, code}, data...)
	out := []byte{0x00, 0x00, 0xFF, byte(len(body)), byte(-len(body))}
	var sum byte
	for _, b := range body {
		sum += b
	}
	out = append(out, body...)
	return append(out, -sum, 0x00)
}

func acked(frame []byte) []byte {
	return append(append([]byte(nil), ackFrame...), frame...)
}

func initReplies() [][]byte {
	return [][]byte{
		acked(response(cmdGetFirmwareVersion+1, 0x32, 0x01, 0x06, 0x07)),
		acked(response(cmdSAMConfiguration + 1)),
	}
}

func newTestTransport(t *testing.T, replies ...[]byte) (*Transport, *fakePort) {
	t.Helper()
	port := &fakePort{replies: append(initReplies(), replies...)}
	tr := New(Options{
		Device:          "/dev/fake",
		Baud:            115200,
		ResponseTimeout: 50 * time.Millisecond,
		Open:            func(string, int) (Port, error) { return port, nil },
	}, nil)
	if err := tr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tr, port
}

func TestEncodeFrameChecksums(t *testing.T) {
	got, err := encodeFrame(cmdGetFirmwareVersion, nil)
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	want := []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("frame = % x, want % x", got, want)
	}
	if _, err := encodeFrame(cmdInDataExchange, make([]byte, 300)); err == nil {
		t.Fatal("expected oversized frame to be rejected")
	}
}

func TestInitializeReadsFirmware(t *testing.T) {
	tr, port := newTestTransport(t)
	if got := tr.Firmware().String(); got != "PN532 v1.6" {
		t.Fatalf("firmware = %q", got)
	}
	sam := port.frames[1]
	if sam[6] != cmdSAMConfiguration || sam[7] != samNormalMode {
		t.Fatalf("unexpected SAM frame % x", sam)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !port.closed {
		t.Fatal("expected port closed")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestInitializeWithoutReaderIsTransportFault(t *testing.T) {
	port := &fakePort{}
	tr := New(Options{
		ResponseTimeout: 20 * time.Millisecond,
		Open:            func(string, int) (Port, error) { return port, nil },
	}, nil)
	err := tr.Initialize(context.Background())
	if !errors.Is(err, faults.ErrTransport) {
		t.Fatalf("expected transport fault, got %v", err)
	}
	if !port.closed {
		t.Fatal("expected port closed after failed initialize")
	}
}

func TestDetectCardReturnsUID(t *testing.T) {
	tr, _ := newTestTransport(t,
		acked(response(cmdInListPassiveTarget+1, 0x01, 0x01, 0x00, 0x04, 0x08, 0x04, 0xDE, 0xAD, 0xBE, 0xEF)),
	)
	uid, ok, err := tr.DetectCard(context.Background(), 50*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("DetectCard = %v, %v", ok, err)
	}
	if uid.String() != "de:ad:be:ef" {
		t.Fatalf("uid = %s", uid)
	}
}

func TestDetectCardTimeoutIsNoCard(t *testing.T) {
	tr, port := newTestTransport(t, ackFrame)
	uid, ok, err := tr.DetectCard(context.Background(), 20*time.Millisecond)
	if err != nil || ok || uid != nil {
		t.Fatalf("DetectCard = %v, %v, %v", uid, ok, err)
	}
	if port.aborts != 1 {
		t.Fatalf("aborts = %d, want 1", port.aborts)
	}
}

func TestDetectCardWithoutAckIsTransportFault(t *testing.T) {
	tr, _ := newTestTransport(t)
	_, _, err := tr.DetectCard(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, faults.ErrTransport) {
		t.Fatalf("expected transport fault, got %v", err)
	}
}

func TestAuthenticateSendsKeyAndUID(t *testing.T) {
	tr, port := newTestTransport(t, acked(response(cmdInDataExchange+1, 0x00)))
	uid := card.UID{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03}
	ok, err := tr.AuthenticateBlock(context.Background(), uid, 2, card.KeySlotA, card.DefaultKeyA)
	if err != nil || !ok {
		t.Fatalf("AuthenticateBlock = %v, %v", ok, err)
	}
	frame := port.frames[len(port.frames)-1]
	params := frame[7 : len(frame)-2]
	want := []byte{targetNumber, byte(card.KeySlotA), 2, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(params, want) {
		t.Fatalf("params = % x, want % x", params, want)
	}
}

func TestAuthenticateRejected(t *testing.T) {
	tr, _ := newTestTransport(t, acked(response(cmdInDataExchange+1, 0x14)))
	ok, err := tr.AuthenticateBlock(context.Background(), card.UID{1, 2, 3, 4}, 2, card.KeySlotA, card.DefaultKeyA)
	if err != nil || ok {
		t.Fatalf("AuthenticateBlock = %v, %v", ok, err)
	}
}

func TestReadAndWriteBlock(t *testing.T) {
	payload := card.EncodeBottleID(11)
	readReply := append([]byte{0x00}, payload[:]...)
	tr, port := newTestTransport(t,
		acked(response(cmdInDataExchange+1, readReply...)),
		acked(response(cmdInDataExchange+1, 0x00)),
		acked(response(cmdInDataExchange+1, 0x14)),
	)
	uid := card.UID{1, 2, 3, 4}

	data, ok, err := tr.ReadBlock(context.Background(), uid, 2)
	if err != nil || !ok {
		t.Fatalf("ReadBlock = %v, %v", ok, err)
	}
	if data != payload {
		t.Fatalf("data = %s", data.Hex())
	}

	ok, err = tr.WriteBlock(context.Background(), uid, 2, payload)
	if err != nil || !ok {
		t.Fatalf("WriteBlock = %v, %v", ok, err)
	}
	frame := port.frames[len(port.frames)-1]
	if frame[8] != mifareCmdWrite || frame[9] != 2 || frame[10] != 11 {
		t.Fatalf("unexpected write frame % x", frame)
	}

	if _, ok, err := tr.ReadBlock(context.Background(), uid, 2); err != nil || ok {
		t.Fatalf("failed read = %v, %v", ok, err)
	}
}

func TestOperationsRequireInitialize(t *testing.T) {
	tr := New(Options{Open: func(string, int) (Port, error) { return &fakePort{}, nil }}, nil)
	if _, _, err := tr.DetectCard(context.Background(), time.Millisecond); !errors.Is(err, faults.ErrTransport) {
		t.Fatalf("DetectCard err = %v", err)
	}
	if _, _, err := tr.ReadBlock(context.Background(), card.UID{1, 2, 3, 4}, 2); !errors.Is(err, faults.ErrTransport) {
		t.Fatalf("ReadBlock err = %v", err)
	}
}

func TestChecksumMismatchIsTransportFault(t *testing.T) {
	bad := response(cmdInDataExchange+1, 0x00)
	bad[len(bad)-2]++
	tr, _ := newTestTransport(t, acked(bad))
	_, err := tr.AuthenticateBlock(context.Background(), card.UID{1, 2, 3, 4}, 2, card.KeySlotA, card.DefaultKeyA)
	if !errors.Is(err, faults.ErrTransport) {
		t.Fatalf("expected transport fault, got %v", err)
	}
}

func TestCardLeavingFieldIsNotPresent(t *testing.T) {
	tr, _ := newTestTransport(t, acked(response(cmdInDataExchange+1, statusTargetTimeout)))
	_, ok, err := tr.ReadBlock(context.Background(), card.UID{1, 2, 3, 4}, 2)
	if ok {
		t.Fatal("expected no data from a departed card")
	}
	if !errors.Is(err, faults.ErrNotPresent) {
		t.Fatalf("expected not-present fault, got %v", err)
	}
	if errors.Is(err, faults.ErrTransport) {
		t.Fatalf("departed card reported as transport fault: %v", err)
	}
}
