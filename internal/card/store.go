package card

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tagstation/internal/faults"
	"tagstation/internal/logging"
)

// AccessReason records why a block access failed. It is logged, not used to
// pick a different control path.
type AccessReason string

const (
	ReasonInvalidBlock AccessReason = "invalid_block"
	ReasonAuthRejected AccessReason = "auth_rejected"
	ReasonNoData       AccessReason = "no_data"
	ReasonTransport    AccessReason = "transport"
	ReasonNotPresent   AccessReason = "not_present"
)

// BlockAccessError reports a failed read or write of one block.
type BlockAccessError struct {
	Op     string
	Block  int
	Reason AccessReason
	Err    error
}

func (e *BlockAccessError) Error() string {
	msg := fmt.Sprintf("%s block %d: %s", e.Op, e.Block, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BlockAccessError) Unwrap() []error {
	errs := []error{faults.ErrBlockAccess}
	if e.Reason == ReasonAuthRejected {
		errs = append(errs, faults.ErrAuthRejected)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// BlockRead is one result of ReadAllBlocks.
type BlockRead struct {
	Block int
	Data  BlockData
}

// Store performs authenticated block access with the static key.
type Store struct {
	transport Transport
	slot      KeySlot
	key       Key
	logger    *slog.Logger
}

// NewStore wraps transport. A nil logger discards output.
func NewStore(transport Transport, logger *slog.Logger) *Store {
	return &Store{
		transport: transport,
		slot:      KeySlotA,
		key:       DefaultKeyA,
		logger:    logging.NewComponentLogger(logger, "card-store"),
	}
}

// ReadBlock authenticates and reads one block.
func (s *Store) ReadBlock(ctx context.Context, uid UID, block int) (BlockData, error) {
	data, err := s.read(ctx, uid, block)
	if err != nil {
		s.logFailure(ctx, err)
	}
	return data, err
}

// WriteBlock authenticates and writes one block.
func (s *Store) WriteBlock(ctx context.Context, uid UID, block int, data BlockData) error {
	if err := s.write(ctx, uid, block, data); err != nil {
		s.logFailure(ctx, err)
		return err
	}
	s.logger.Info("wrote block", logging.Int(logging.FieldBlock, block), logging.String(logging.FieldUID, uid.String()))
	return nil
}

// ReadAllBlocks reads every block on the card, skipping blocks that fail.
// Sector trailers and blocks with other keys are expected to fail on most
// cards; each failure is logged once at warn level.
func (s *Store) ReadAllBlocks(ctx context.Context, uid UID) []BlockRead {
	reads := make([]BlockRead, 0, BlockCount)
	for block := 0; block < BlockCount; block++ {
		if ctx.Err() != nil {
			break
		}
		data, err := s.read(ctx, uid, block)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			attrs := []logging.Attr{logging.Int(logging.FieldBlock, block)}
			if accessErr, ok := AsBlockAccess(err); ok {
				attrs = append(attrs, logging.String("reason", string(accessErr.Reason)))
			}
			s.logger.Warn("no data read from block", logging.Args(attrs...)...)
			continue
		}
		reads = append(reads, BlockRead{Block: block, Data: data})
	}
	return reads
}

func (s *Store) read(ctx context.Context, uid UID, block int) (BlockData, error) {
	if err := s.authenticate(ctx, "read", uid, block); err != nil {
		return BlockData{}, err
	}
	data, ok, err := s.transport.ReadBlock(ctx, uid, block)
	if err != nil {
		return BlockData{}, accessError("read", block, err)
	}
	if !ok {
		return BlockData{}, &BlockAccessError{Op: "read", Block: block, Reason: ReasonNoData}
	}
	return data, nil
}

func (s *Store) write(ctx context.Context, uid UID, block int, data BlockData) error {
	if err := s.authenticate(ctx, "write", uid, block); err != nil {
		return err
	}
	ok, err := s.transport.WriteBlock(ctx, uid, block, data)
	if err != nil {
		return accessError("write", block, err)
	}
	if !ok {
		return &BlockAccessError{Op: "write", Block: block, Reason: ReasonNoData}
	}
	return nil
}

func (s *Store) authenticate(ctx context.Context, op string, uid UID, block int) error {
	if !ValidBlock(block) {
		return &BlockAccessError{Op: op, Block: block, Reason: ReasonInvalidBlock}
	}
	ok, err := s.transport.AuthenticateBlock(ctx, uid, block, s.slot, s.key)
	if err != nil {
		return accessError(op, block, err)
	}
	if !ok {
		return &BlockAccessError{Op: op, Block: block, Reason: ReasonAuthRejected}
	}
	return nil
}

func accessError(op string, block int, err error) *BlockAccessError {
	reason := ReasonTransport
	if errors.Is(err, faults.ErrNotPresent) {
		reason = ReasonNotPresent
	}
	return &BlockAccessError{Op: op, Block: block, Reason: reason, Err: err}
}

// logFailure records a failed access. Failures caused by ctx ending are the
// caller's to report.
func (s *Store) logFailure(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	accessErr, ok := AsBlockAccess(err)
	if !ok {
		s.logger.Error("block access failed", logging.Error(err))
		return
	}
	attrs := []logging.Attr{
		logging.Int(logging.FieldBlock, accessErr.Block),
		logging.String("reason", string(accessErr.Reason)),
	}
	if accessErr.Err != nil {
		attrs = append(attrs, logging.Error(accessErr.Err))
	}
	s.logger.Error("block "+accessErr.Op+" failed", logging.Args(attrs...)...)
}

// AsBlockAccess reports whether err is a block access failure.
func AsBlockAccess(err error) (*BlockAccessError, bool) {
	var accessErr *BlockAccessError
	if errors.As(err, &accessErr) {
		return accessErr, true
	}
	return nil, false
}
