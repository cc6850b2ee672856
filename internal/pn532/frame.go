package pn532

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	preamble   = 0x00
	startCode1 = 0x00
	startCode2 = 0xFF
	postamble  = 0x00

	hostToPN532 = 0xD4
	pn532ToHost = 0xD5
	errorFrame  = 0x7F

	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdInListPassiveTarget = 0x4A
	cmdInDataExchange      = 0x40

	mifareCmdRead  = 0x30
	mifareCmdWrite = 0xA0
	brTy106TypeA   = 0x00
	maxFrameData   = 254
	targetNumber   = 0x01
	samNormalMode  = 0x01
	samTimeout50ms = 0x14
	samUseIRQ      = 0x01
	exchangeOKMask = 0x3F
	// statusTargetTimeout is the InDataExchange status for a target that
	// stopped answering, usually because the card left the field.
	statusTargetTimeout = 0x01
	frameTypeNormal     = 0
	frameTypeACK        = 1
	frameTypeNACK       = 2
)

var (
	ackFrame    = []byte{preamble, startCode1, startCode2, 0x00, 0xFF, postamble}
	wakeupBytes = []byte{0x55, 0x55, 0x00, 0x00, 0x00}

	errTimeout  = errors.New("pn532: response timeout")
	errNACK     = errors.New("pn532: frame not acknowledged")
	errNoACK    = errors.New("pn532: no acknowledgement")
	errMalframe = errors.New("pn532: malformed frame")
)

// Port is a byte stream to the reader. Read may return 0 bytes and a nil
// error when no data arrived within the port's inter-byte timeout.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// encodeFrame builds a normal information frame carrying cmd and params.
func encodeFrame(cmd byte, params []byte) ([]byte, error) {
	length := len(params) + 2
	if length > maxFrameData {
		return nil, fmt.Errorf("pn532: frame data too long (%d bytes)", length)
	}
	frame := make([]byte, 0, length+7)
	frame = append(frame, preamble, startCode1, startCode2, byte(length), byte(-length))
	sum := byte(hostToPN532) + cmd
	frame = append(frame, hostToPN532, cmd)
	for _, b := range params {
		sum += b
	}
	frame = append(frame, params...)
	frame = append(frame, -sum, postamble)
	return frame, nil
}

type conn struct {
	port    Port
	pending []byte
	scratch [64]byte
}

func (c *conn) write(p []byte) error {
	for len(p) > 0 {
		n, err := c.port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c *conn) discard() {
	c.pending = c.pending[:0]
}

func (c *conn) readByte(ctx context.Context, deadline time.Time) (byte, error) {
	for len(c.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if !time.Now().Before(deadline) {
			return 0, errTimeout
		}
		n, err := c.port.Read(c.scratch[:])
		if err != nil {
			return 0, err
		}
		c.pending = append(c.pending, c.scratch[:n]...)
	}
	b := c.pending[0]
	c.pending = c.pending[1:]
	return b, nil
}

// readFrame waits for the next frame and returns its type and, for normal
// frames, the bytes following the TFI.
func (c *conn) readFrame(ctx context.Context, deadline time.Time) (int, []byte, error) {
	// Scan for the 0x00 0xFF start code; leading preamble bytes are skipped.
	var prev byte = 0xAA
	for {
		b, err := c.readByte(ctx, deadline)
		if err != nil {
			return 0, nil, err
		}
		if prev == startCode1 && b == startCode2 {
			break
		}
		prev = b
	}

	length, err := c.readByte(ctx, deadline)
	if err != nil {
		return 0, nil, err
	}
	lcs, err := c.readByte(ctx, deadline)
	if err != nil {
		return 0, nil, err
	}
	switch {
	case length == 0x00 && lcs == 0xFF:
		_, _ = c.readByte(ctx, deadline)
		return frameTypeACK, nil, nil
	case length == 0xFF && lcs == 0x00:
		_, _ = c.readByte(ctx, deadline)
		return frameTypeNACK, nil, nil
	case length+lcs != 0:
		return 0, nil, fmt.Errorf("%w: length checksum", errMalframe)
	case length == 0:
		return 0, nil, fmt.Errorf("%w: empty frame", errMalframe)
	}

	body := make([]byte, length)
	var sum byte
	for i := range body {
		if body[i], err = c.readByte(ctx, deadline); err != nil {
			return 0, nil, err
		}
		sum += body[i]
	}
	dcs, err := c.readByte(ctx, deadline)
	if err != nil {
		return 0, nil, err
	}
	if sum+dcs != 0 {
		return 0, nil, fmt.Errorf("%w: data checksum", errMalframe)
	}
	_, _ = c.readByte(ctx, deadline)

	switch body[0] {
	case pn532ToHost:
		return frameTypeNormal, body[1:], nil
	case errorFrame:
		return 0, nil, fmt.Errorf("%w: application error frame", errMalframe)
	default:
		return 0, nil, fmt.Errorf("%w: unexpected frame identifier %#02x", errMalframe, body[0])
	}
}

// call sends cmd, waits for the ACK, then for the response within timeout.
// The returned slice excludes the response code byte.
func (c *conn) call(ctx context.Context, cmd byte, params []byte, ackTimeout, timeout time.Duration) ([]byte, error) {
	frame, err := encodeFrame(cmd, params)
	if err != nil {
		return nil, err
	}
	c.discard()
	if err := c.write(frame); err != nil {
		return nil, fmt.Errorf("pn532: write command %#02x: %w", cmd, err)
	}

	kind, _, err := c.readFrame(ctx, time.Now().Add(ackTimeout))
	if errors.Is(err, errTimeout) {
		return nil, fmt.Errorf("%w for command %#02x", errNoACK, cmd)
	}
	if err != nil {
		return nil, fmt.Errorf("pn532: await ack for %#02x: %w", cmd, err)
	}
	if kind != frameTypeACK {
		return nil, errNACK
	}

	kind, body, err := c.readFrame(ctx, time.Now().Add(timeout))
	if err != nil {
		return nil, err
	}
	if kind != frameTypeNormal || len(body) == 0 {
		return nil, fmt.Errorf("%w: expected response to %#02x", errMalframe, cmd)
	}
	if body[0] != cmd+1 {
		return nil, fmt.Errorf("%w: response code %#02x for command %#02x", errMalframe, body[0], cmd)
	}
	return body[1:], nil
}

// abort cancels the command in progress by sending an ACK frame.
func (c *conn) abort() error {
	c.discard()
	return c.write(ackFrame)
}
