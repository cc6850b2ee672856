package card_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"tagstation/internal/card"
	"tagstation/internal/faults"
	"tagstation/internal/testsupport"
)

var testUID = card.UID{0xde, 0xad, 0xbe, 0xef}

func TestWriteThenReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, id := range []uint8{0, 1, 11, 200, 255} {
		transport := testsupport.NewFakeTransport()
		store := card.NewStore(transport, nil)

		if err := store.WriteBlock(ctx, testUID, card.BottleIDBlock, card.EncodeBottleID(id)); err != nil {
			t.Fatalf("WriteBlock(%d) failed: %v", id, err)
		}
		data, err := store.ReadBlock(ctx, testUID, card.BottleIDBlock)
		if err != nil {
			t.Fatalf("ReadBlock failed: %v", err)
		}
		if got := card.DecodeBottleID(data); got != id {
			t.Fatalf("round trip: got %d want %d", got, id)
		}
		for i := 1; i < card.BlockSize; i++ {
			if data[i] != 0 {
				t.Fatalf("expected byte %d to be zero, got %#x", i, data[i])
			}
		}
	}
}

func TestEveryAccessAuthenticatesFirst(t *testing.T) {
	ctx := context.Background()
	transport := testsupport.NewFakeTransport()
	store := card.NewStore(transport, nil)

	if err := store.WriteBlock(ctx, testUID, 2, card.EncodeBottleID(4)); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}
	if _, err := store.ReadBlock(ctx, testUID, 2); err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if _, err := store.ReadBlock(ctx, testUID, 2); err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if len(transport.AuthCalls) != 3 {
		t.Fatalf("expected one authentication per access, got %v", transport.AuthCalls)
	}
}

func TestAuthRejectionIsBlockAccessError(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.RejectAuth[2] = true
	store := card.NewStore(transport, nil)

	_, err := store.ReadBlock(context.Background(), testUID, 2)
	accessErr, ok := card.AsBlockAccess(err)
	if !ok {
		t.Fatalf("expected BlockAccessError, got %v", err)
	}
	if accessErr.Reason != card.ReasonAuthRejected {
		t.Fatalf("unexpected reason %q", accessErr.Reason)
	}
	if !errors.Is(err, faults.ErrBlockAccess) || !errors.Is(err, faults.ErrAuthRejected) {
		t.Fatalf("expected block access and auth markers, got %v", err)
	}
	if len(transport.Writes) != 0 {
		t.Fatal("expected no writes")
	}
}

func TestTransportFaultIsBlockAccessError(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	linkErr := faults.Wrap(faults.ErrTransport, "pn532", "exchange", "link dropped", nil)
	transport.BlockErr = linkErr
	store := card.NewStore(transport, nil)

	err := store.WriteBlock(context.Background(), testUID, 2, card.EncodeBottleID(1))
	accessErr, ok := card.AsBlockAccess(err)
	if !ok || accessErr.Reason != card.ReasonTransport {
		t.Fatalf("expected transport block access error, got %v", err)
	}
	if !errors.Is(err, faults.ErrTransport) {
		t.Fatalf("expected wrapped transport fault, got %v", err)
	}
}

func TestNoDataIsBlockAccessError(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.NoData[2] = true
	store := card.NewStore(transport, nil)

	if _, err := store.ReadBlock(context.Background(), testUID, 2); err == nil {
		t.Fatal("expected read failure")
	}
	if err := store.WriteBlock(context.Background(), testUID, 2, card.BlockData{}); err == nil {
		t.Fatal("expected write failure")
	}
}

func TestInvalidBlockRejectedWithoutTransportCall(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	store := card.NewStore(transport, nil)

	for _, block := range []int{-1, card.BlockCount} {
		_, err := store.ReadBlock(context.Background(), testUID, block)
		accessErr, ok := card.AsBlockAccess(err)
		if !ok || accessErr.Reason != card.ReasonInvalidBlock {
			t.Fatalf("block %d: expected invalid block error, got %v", block, err)
		}
	}
	if len(transport.AuthCalls) != 0 {
		t.Fatalf("expected no authentication attempts, got %v", transport.AuthCalls)
	}
}

func TestReadAllBlocksSkipsFailures(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.Blocks[2] = card.EncodeBottleID(9)
	for block := 3; block < card.BlockCount; block += 4 {
		transport.RejectAuth[block] = true
	}
	store := card.NewStore(transport, nil)

	reads := store.ReadAllBlocks(context.Background(), testUID)
	if len(reads) != card.BlockCount-card.BlockCount/4 {
		t.Fatalf("expected %d readable blocks, got %d", card.BlockCount-card.BlockCount/4, len(reads))
	}
	for _, read := range reads {
		if read.Block%4 == 3 {
			t.Fatalf("trailer block %d should have been skipped", read.Block)
		}
		if read.Block == 2 && card.DecodeBottleID(read.Data) != 9 {
			t.Fatalf("unexpected block 2 contents %s", read.Data.Hex())
		}
	}
}

func TestUIDFormatting(t *testing.T) {
	if got := testUID.String(); got != "de:ad:be:ef" {
		t.Fatalf("unexpected UID string %q", got)
	}
	if !testUID.Valid() || (card.UID{1, 2, 3}).Valid() {
		t.Fatal("unexpected UID validity")
	}
	if got := card.EncodeBottleID(0x0b).Hex(); got != "0b 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00" {
		t.Fatalf("unexpected hex %q", got)
	}
}

func countLogLevels(t *testing.T, buf *bytes.Buffer) map[string]int {
	t.Helper()
	counts := make(map[string]int)
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		level, _ := entry["level"].(string)
		counts[level]++
	}
	return counts
}

func TestReadAllBlocksLogsEachFailureOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	transport := testsupport.NewFakeTransport()
	for block := 3; block < card.BlockCount; block += 4 {
		transport.RejectAuth[block] = true
	}
	store := card.NewStore(transport, logger)

	store.ReadAllBlocks(context.Background(), testUID)

	counts := countLogLevels(t, &buf)
	if counts["WARN"] != card.BlockCount/4 {
		t.Fatalf("warn records = %d, want %d", counts["WARN"], card.BlockCount/4)
	}
	if counts["ERROR"] != 0 {
		t.Fatalf("error records = %d, want 0", counts["ERROR"])
	}
}

func TestCancelledAccessIsNotLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	transport := testsupport.NewFakeTransport()
	transport.BlockErr = context.Canceled
	store := card.NewStore(transport, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.ReadBlock(ctx, testUID, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no log output, got %s", buf.String())
	}
}

func TestDepartedCardIsNotPresentReason(t *testing.T) {
	transport := testsupport.NewFakeTransport()
	transport.BlockErr = faults.Wrap(faults.ErrNotPresent, "pn532", "read", "card left the field", nil)
	store := card.NewStore(transport, nil)

	_, err := store.ReadBlock(context.Background(), testUID, 2)
	accessErr, ok := card.AsBlockAccess(err)
	if !ok || accessErr.Reason != card.ReasonNotPresent {
		t.Fatalf("expected not-present block access error, got %v", err)
	}
	if !faults.Recoverable(err) {
		t.Fatalf("departed card should be recoverable: %v", err)
	}
}
