package pn532

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tagstation/internal/card"
	"tagstation/internal/faults"
	"tagstation/internal/logging"
)

const component = "pn532"

// Firmware describes the reader reported by GetFirmwareVersion.
type Firmware struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f Firmware) String() string {
	return fmt.Sprintf("PN5%02x v%d.%d", f.IC, f.Version, f.Revision)
}

// Options configures a Transport.
type Options struct {
	Device          string
	Baud            int
	ResponseTimeout time.Duration
	// Open replaces the serial port opener, mainly for tests.
	Open func(device string, baud int) (Port, error)
}

// Transport implements card.Transport on a PN532 attached over UART.
type Transport struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	conn     *conn
	firmware Firmware
}

var _ card.Transport = (*Transport)(nil)

// New constructs a Transport. The port is opened by Initialize.
func New(opts Options, logger *slog.Logger) *Transport {
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = time.Second
	}
	if opts.Open == nil {
		opts.Open = OpenSerial
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transport{opts: opts, logger: logging.NewComponentLogger(logger, component)}
}

// Firmware returns the version read during Initialize.
func (t *Transport) Firmware() Firmware {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firmware
}

// Initialize opens the serial port, wakes the reader, and configures the SAM
// for normal mode.
func (t *Transport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}

	port, err := t.opts.Open(t.opts.Device, t.opts.Baud)
	if err != nil {
		return faults.Wrap(faults.ErrTransport, component, "open", "open serial device "+t.opts.Device, err)
	}
	c := &conn{port: port}
	if err := c.write(wakeupBytes); err != nil {
		_ = port.Close()
		return faults.Wrap(faults.ErrTransport, component, "wakeup", "wake reader", err)
	}

	resp, err := c.call(ctx, cmdGetFirmwareVersion, nil, t.opts.ResponseTimeout, t.opts.ResponseTimeout)
	if err != nil {
		_ = port.Close()
		return faults.Wrap(faults.ErrTransport, component, "firmware", "read firmware version", err)
	}
	if len(resp) < 4 {
		_ = port.Close()
		return faults.Wrap(faults.ErrTransport, component, "firmware", "short firmware response", errMalframe)
	}
	fw := Firmware{IC: resp[0], Version: resp[1], Revision: resp[2], Support: resp[3]}

	if _, err := c.call(ctx, cmdSAMConfiguration, []byte{samNormalMode, samTimeout50ms, samUseIRQ}, t.opts.ResponseTimeout, t.opts.ResponseTimeout); err != nil {
		_ = port.Close()
		return faults.Wrap(faults.ErrTransport, component, "sam", "configure SAM", err)
	}

	t.conn = c
	t.firmware = fw
	t.logger.Info("reader initialized",
		logging.String("device", t.opts.Device),
		logging.String("firmware", fw.String()),
		logging.String(logging.FieldEventType, "reader_ready"),
	)
	return nil
}

// DetectCard lists one passive 106 kbps type A target. A timeout without a
// target is reported as no card.
func (t *Transport) DetectCard(ctx context.Context, timeout time.Duration) (card.UID, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, false, errNotInitialized("detect")
	}

	resp, err := t.conn.call(ctx, cmdInListPassiveTarget, []byte{targetNumber, brTy106TypeA}, t.opts.ResponseTimeout, timeout)
	if errors.Is(err, errTimeout) {
		if abortErr := t.conn.abort(); abortErr != nil {
			return nil, false, faults.Wrap(faults.ErrTransport, component, "detect", "abort target listing", abortErr)
		}
		return nil, false, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = t.conn.abort()
			return nil, false, ctxErr
		}
		return nil, false, faults.Wrap(faults.ErrTransport, component, "detect", "list passive target", err)
	}
	if len(resp) == 0 || resp[0] == 0 {
		return nil, false, nil
	}
	// NbTg Tg SENS_RES(2) SEL_RES NFCIDLength NFCID...
	if len(resp) < 6 || len(resp) < 6+int(resp[5]) {
		return nil, false, faults.Wrap(faults.ErrTransport, component, "detect", "short target response", errMalframe)
	}
	uid := card.UID(append([]byte(nil), resp[6:6+int(resp[5])]...))
	return uid, true, nil
}

// AuthenticateBlock runs MIFARE authentication for block with the key in
// slot. The slot value is sent as the MIFARE command byte.
func (t *Transport) AuthenticateBlock(ctx context.Context, uid card.UID, block int, slot card.KeySlot, key card.Key) (bool, error) {
	if len(uid) < 4 {
		return false, nil
	}
	params := make([]byte, 0, 13)
	params = append(params, targetNumber, byte(slot), byte(block))
	params = append(params, key[:]...)
	params = append(params, uid[:4]...)
	resp, err := t.exchange(ctx, "authenticate", params)
	if err != nil {
		return false, err
	}
	return exchangeStatus("authenticate", resp)
}

// ReadBlock reads one 16 byte block.
func (t *Transport) ReadBlock(ctx context.Context, _ card.UID, block int) (card.BlockData, bool, error) {
	var data card.BlockData
	resp, err := t.exchange(ctx, "read", []byte{targetNumber, mifareCmdRead, byte(block)})
	if err != nil {
		return data, false, err
	}
	if ok, err := exchangeStatus("read", resp); !ok || err != nil {
		return data, false, err
	}
	if len(resp) < 1+card.BlockSize {
		return data, false, nil
	}
	copy(data[:], resp[1:1+card.BlockSize])
	return data, true, nil
}

// WriteBlock writes one 16 byte block.
func (t *Transport) WriteBlock(ctx context.Context, _ card.UID, block int, data card.BlockData) (bool, error) {
	params := make([]byte, 0, 3+card.BlockSize)
	params = append(params, targetNumber, mifareCmdWrite, byte(block))
	params = append(params, data[:]...)
	resp, err := t.exchange(ctx, "write", params)
	if err != nil {
		return false, err
	}
	return exchangeStatus("write", resp)
}

// Close releases the serial port. It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.port.Close()
	t.conn = nil
	if err != nil {
		return faults.Wrap(faults.ErrTransport, component, "close", "close serial device", err)
	}
	return nil
}

func (t *Transport) exchange(ctx context.Context, op string, params []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, errNotInitialized(op)
	}
	resp, err := t.conn.call(ctx, cmdInDataExchange, params, t.opts.ResponseTimeout, t.opts.ResponseTimeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, faults.Wrap(faults.ErrTransport, component, op, "data exchange", err)
	}
	return resp, nil
}

// exchangeStatus interprets the InDataExchange status byte. A target
// timeout means the card is gone; any other non-zero status is a refusal.
func exchangeStatus(op string, resp []byte) (bool, error) {
	if len(resp) == 0 {
		return false, nil
	}
	switch resp[0] & exchangeOKMask {
	case 0:
		return true, nil
	case statusTargetTimeout:
		return false, faults.Wrap(faults.ErrNotPresent, component, op, "card left the field", nil)
	default:
		return false, nil
	}
}

func errNotInitialized(op string) error {
	return faults.Wrap(faults.ErrTransport, component, op, "reader not initialized", nil)
}
