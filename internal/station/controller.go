package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tagstation/internal/card"
	"tagstation/internal/catalog"
	"tagstation/internal/faults"
	"tagstation/internal/label"
	"tagstation/internal/logging"
)

const component = "station"

// Catalog is the subset of the catalog store the controller uses.
type Catalog interface {
	RecipeFor(ctx context.Context, id catalog.BottleID) (catalog.RecipeID, bool, error)
	RecipeAndTaggedAt(ctx context.Context, id catalog.BottleID) (catalog.RecipeID, *time.Time, bool, error)
	CompositionFor(ctx context.Context, recipe catalog.RecipeID) ([]catalog.CompositionRow, error)
	FirstUntaggedBottle(ctx context.Context) (catalog.BottleID, bool, error)
	MarkTagged(ctx context.Context, id catalog.BottleID, at time.Time) error
}

// ClaimLocker serializes bottle claims across processes.
type ClaimLocker interface {
	Acquire(ctx context.Context) error
	Release() error
}

// Recorder stores finished cycles.
type Recorder interface {
	RecordRun(ctx context.Context, run catalog.Run) (string, error)
}

// Options wires a Controller.
type Options struct {
	Name      string
	Mode      Mode
	Transport card.Transport
	Catalog   Catalog
	// Encoder and LabelDir are required for LookupAndEncodeLabel.
	Encoder  label.Encoder
	LabelDir string
	// ReaderLock is a lock file held while the reader is open.
	ReaderLock string
	// Claims guards ClaimAndWriteBottleID; nil disables cross-process locking.
	Claims  ClaimLocker
	History Recorder

	PollInterval time.Duration
	Logger       *slog.Logger
	Clock        func() time.Time
	NewRunID     func() string

	// OnPoll runs after every detection poll that found no card.
	OnPoll func()
	// OnTransition runs on every state change with a snapshot of the session.
	OnTransition func(from, to State, session Session)
}

// Controller drives one reader through station cycles. It is not safe for
// concurrent use.
type Controller struct {
	opts   Options
	logger *slog.Logger
	store  *card.Store
	lock   *flock.Flock
	opened bool
}

// New validates opts and returns a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Transport == nil {
		return nil, configError("card transport is required")
	}
	if opts.Catalog == nil {
		return nil, configError("catalog is required")
	}
	if !opts.Mode.Valid() {
		return nil, configError(fmt.Sprintf("invalid mode %s", opts.Mode))
	}
	if opts.Mode.Action == LookupAndEncodeLabel && (opts.Encoder == nil || opts.LabelDir == "") {
		return nil, configError("label mode requires an encoder and output directory")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.Name == "" {
		opts.Name = opts.Mode.String()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	base := opts.Logger
	if base == nil {
		base = logging.NewNop()
	}

	// Cycle loggers take the station and run id from the cycle context.
	c := &Controller{
		opts:   opts,
		logger: logging.NewComponentLogger(base, component),
		store:  card.NewStore(opts.Transport, base.With(logging.String(logging.FieldStation, opts.Name))),
	}
	if opts.ReaderLock != "" {
		c.lock = flock.New(opts.ReaderLock)
	}
	return c, nil
}

func configError(msg string) error {
	return faults.Wrap(faults.ErrConfiguration, component, "new", msg, nil)
}

// Mode returns the configured mode.
func (c *Controller) Mode() Mode {
	return c.opts.Mode
}

// Open performs Init: it takes the reader lock and initializes the
// transport. On failure everything acquired so far is released.
func (c *Controller) Open(ctx context.Context) error {
	if c.opened {
		return nil
	}
	if c.lock != nil {
		ok, err := c.lock.TryLock()
		if err != nil {
			return faults.Wrap(faults.ErrTransport, component, "init", "acquire reader lock", err)
		}
		if !ok {
			return faults.Wrap(faults.ErrTransport, component, "init", "reader is in use by another process", nil)
		}
	}
	if err := c.opts.Transport.Initialize(ctx); err != nil {
		_ = c.opts.Transport.Close()
		c.unlockReader()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !errors.Is(err, faults.ErrTransport) {
			err = faults.Wrap(faults.ErrTransport, component, "init", "initialize reader", err)
		}
		return err
	}
	c.opened = true
	return nil
}

// Close releases the transport and the reader lock. It is safe to call on
// an unopened controller and more than once.
func (c *Controller) Close() error {
	if !c.opened {
		return nil
	}
	c.opened = false
	err := c.opts.Transport.Close()
	c.unlockReader()
	return err
}

func (c *Controller) unlockReader() {
	if c.lock == nil || !c.lock.Locked() {
		return
	}
	if err := c.lock.Unlock(); err != nil {
		c.logger.Warn("failed to release reader lock",
			logging.String(logging.FieldStation, c.opts.Name),
			logging.Error(err),
		)
	}
}

// Run executes one cycle starting at Init and always releases the reader
// before returning. A non-nil error means ctx ended the run before a
// terminal state; faults are reported through Result.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	cyc := c.newCycle(ctx, StateInit)
	if err := c.init(cyc); err != nil {
		if isContextErr(err) {
			return c.interrupted(cyc, err)
		}
		return c.finish(cyc, StateFailed, err), nil
	}
	defer c.Close()
	return c.execute(cyc)
}

// Loop runs Init once, then cycles until a cycle fails or ctx ends. Every
// finished cycle is passed to onResult. The returned error is the fault of
// the failing cycle or ctx.Err().
func (c *Controller) Loop(ctx context.Context, onResult func(Result)) error {
	if onResult == nil {
		onResult = func(Result) {}
	}
	cyc := c.newCycle(ctx, StateInit)
	if err := c.init(cyc); err != nil {
		if isContextErr(err) {
			return err
		}
		res := c.finish(cyc, StateFailed, err)
		onResult(res)
		return res.Err
	}
	defer c.Close()

	for {
		res, err := c.execute(cyc)
		if err != nil {
			return err
		}
		onResult(res)
		if res.State == StateFailed {
			return res.Err
		}
		cyc = c.newCycle(ctx, StateAwaitCard)
	}
}

// Cycle runs AwaitCard through a terminal state on an opened controller.
func (c *Controller) Cycle(ctx context.Context) (Result, error) {
	if !c.opened {
		return Result{}, faults.Wrap(faults.ErrConfiguration, component, "cycle", "controller is not open", nil)
	}
	return c.execute(c.newCycle(ctx, StateAwaitCard))
}

// ReadAll waits for a card and returns every readable block. It requires an
// opened controller.
func (c *Controller) ReadAll(ctx context.Context) (card.UID, []card.BlockRead, error) {
	if !c.opened {
		return nil, nil, faults.Wrap(faults.ErrConfiguration, component, "read_all", "controller is not open", nil)
	}
	cyc := c.newCycle(ctx, StateAwaitCard)
	uid, err := c.awaitCard(cyc)
	if err != nil {
		return nil, nil, err
	}
	return uid, c.store.ReadAllBlocks(cyc.ctx, uid), nil
}

// init runs the Init state and moves to AwaitCard on success.
func (c *Controller) init(cyc *cycle) error {
	if err := c.Open(cyc.ctx); err != nil {
		if isContextErr(err) {
			return err
		}
		logging.ErrorWithContext(cyc.logger, "reader initialization failed", "reader_init_failed",
			logging.Error(err),
			logging.String("device_lock", c.opts.ReaderLock),
			logging.String(logging.FieldErrorHint, "check reader wiring and serial permissions, and that no other station holds the reader"),
		)
		return err
	}
	cyc.logger.Info("reader ready",
		logging.String("mode", c.opts.Mode.String()),
		logging.String(logging.FieldEventType, "station_ready"),
	)
	c.enter(cyc, StateAwaitCard)
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
