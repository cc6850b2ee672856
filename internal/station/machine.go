package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tagstation/internal/card"
	"tagstation/internal/catalog"
	"tagstation/internal/faults"
	"tagstation/internal/logging"
)

type cycle struct {
	ctx       context.Context
	logger    *slog.Logger
	runID     string
	started   time.Time
	state     State
	trace     []State
	session   Session
	claimHeld bool
}

func (c *Controller) newCycle(ctx context.Context, start State) *cycle {
	runID := c.opts.NewRunID()
	ctx = logging.WithRunID(logging.WithStation(ctx, c.opts.Name), runID)
	return &cycle{
		ctx:     ctx,
		logger:  logging.WithContext(ctx, c.logger),
		runID:   runID,
		started: c.opts.Clock(),
		state:   start,
		trace:   []State{start},
	}
}

func (c *Controller) enter(cyc *cycle, to State) {
	from := cyc.state
	cyc.state = to
	cyc.trace = append(cyc.trace, to)
	cyc.logger.Debug("state transition",
		logging.String("from", from.String()),
		logging.String(logging.FieldState, to.String()),
	)
	if c.opts.OnTransition != nil {
		c.opts.OnTransition(from, to, cyc.session.clone())
	}
}

func (c *Controller) result(cyc *cycle, err error) Result {
	return Result{
		RunID:      cyc.runID,
		Mode:       c.opts.Mode,
		State:      cyc.state,
		Trace:      append([]State(nil), cyc.trace...),
		Session:    cyc.session.clone(),
		Err:        err,
		StartedAt:  cyc.started,
		FinishedAt: c.opts.Clock(),
	}
}

// finish moves the cycle to a terminal state and records it.
func (c *Controller) finish(cyc *cycle, terminal State, err error) Result {
	c.releaseClaim(cyc)
	c.enter(cyc, terminal)
	res := c.result(cyc, err)

	attrs := []logging.Attr{
		logging.String(logging.FieldState, terminal.String()),
		logging.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	}
	if cyc.session.BottleID != nil {
		attrs = append(attrs, logging.Int64(logging.FieldBottleID, int64(*cyc.session.BottleID)))
	}
	if terminal == StateDone {
		attrs = append(attrs, logging.String(logging.FieldEventType, "station_done"))
		cyc.logger.Info("station cycle complete", logging.Args(attrs...)...)
	} else {
		attrs = append(attrs,
			logging.String(logging.FieldEventType, "station_failed"),
			logging.String("error_kind", string(faults.KindOf(err))),
			logging.Error(err),
		)
		cyc.logger.Error("station cycle failed", logging.Args(attrs...)...)
	}

	c.record(cyc, res)
	return res
}

// interrupted reports a cycle that ctx ended before a terminal state.
func (c *Controller) interrupted(cyc *cycle, err error) (Result, error) {
	c.releaseClaim(cyc)
	cyc.logger.Info("station cycle interrupted",
		logging.String(logging.FieldState, cyc.state.String()),
		logging.String(logging.FieldEventType, "station_interrupted"),
	)
	return c.result(cyc, err), err
}

func (c *Controller) record(cyc *cycle, res Result) {
	if c.opts.History == nil {
		return
	}
	run := catalog.Run{
		ID:         res.RunID,
		Station:    c.opts.Name,
		Mode:       c.opts.Mode.String(),
		CardUID:    res.Session.UID.String(),
		BottleID:   res.Session.BottleID,
		FinalState: res.State.String(),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if _, err := c.opts.History.RecordRun(context.WithoutCancel(cyc.ctx), run); err != nil {
		logging.WarnWithContext(cyc.logger, "failed to record station run", "run_history_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check catalog database permissions"),
			logging.String(logging.FieldImpact, "run missing from history"),
		)
	}
}

// execute drives a cycle from AwaitCard to a terminal state.
func (c *Controller) execute(cyc *cycle) (Result, error) {
	for {
		switch cyc.state {
		case StateAwaitCard:
			uid, err := c.awaitCard(cyc)
			if err != nil {
				if isContextErr(err) {
					return c.interrupted(cyc, err)
				}
				return c.finish(cyc, StateFailed, err), nil
			}
			cyc.session.UID = uid
			c.enter(cyc, StateAccessCard)

		case StateAccessCard:
			next, err := c.accessCard(cyc)
			if err != nil {
				if isContextErr(err) {
					return c.interrupted(cyc, err)
				}
				return c.finish(cyc, StateFailed, err), nil
			}
			if next == StateAwaitCard {
				cyc.session.dropCard()
				c.enter(cyc, StateAwaitCard)
				if err := sleepContext(cyc.ctx, c.opts.PollInterval); err != nil {
					return c.interrupted(cyc, err)
				}
				continue
			}
			c.enter(cyc, StateReconcile)

		case StateReconcile:
			if err := c.reconcile(cyc); err != nil {
				if isContextErr(err) {
					return c.interrupted(cyc, err)
				}
				return c.finish(cyc, StateFailed, err), nil
			}
			return c.finish(cyc, StateDone, nil), nil

		default:
			err := faults.Wrap(faults.ErrConfiguration, component, "execute", "cycle started in state "+cyc.state.String(), nil)
			return c.finish(cyc, StateFailed, err), nil
		}
	}
}

// awaitCard polls until a card is present. NotPresent never leaves the
// loop; a transport fault does.
func (c *Controller) awaitCard(cyc *cycle) (card.UID, error) {
	for {
		if err := cyc.ctx.Err(); err != nil {
			return nil, err
		}
		uid, ok, err := c.opts.Transport.DetectCard(cyc.ctx, c.opts.PollInterval)
		if err != nil {
			if ctxErr := cyc.ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.Is(err, faults.ErrTransport) {
				err = faults.Wrap(faults.ErrTransport, component, "detect", "detect card", err)
			}
			logging.ErrorWithContext(cyc.logger, "card detection failed", "card_detect_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the reader connection"),
			)
			return nil, err
		}
		if !ok {
			if c.opts.OnPoll != nil {
				c.opts.OnPoll()
			}
			continue
		}
		if !uid.Valid() {
			logging.WarnWithContext(cyc.logger, "ignoring card with unexpected uid length", "card_uid_invalid",
				logging.String(logging.FieldUID, uid.String()),
				logging.Int("uid_len", len(uid)),
				logging.String(logging.FieldErrorHint, "use a MIFARE Classic card"),
			)
			if err := sleepContext(cyc.ctx, c.opts.PollInterval); err != nil {
				return nil, err
			}
			continue
		}
		cyc.logger.Info("card detected",
			logging.String(logging.FieldUID, uid.String()),
			logging.String(logging.FieldEventType, "card_detected"),
		)
		return uid, nil
	}
}

// accessCard returns the next state. A returned error is fatal to the cycle.
func (c *Controller) accessCard(cyc *cycle) (State, error) {
	switch c.opts.Mode.Access {
	case ClaimAndWriteBottleID:
		return c.claimAndWrite(cyc)
	default:
		return c.readBottleID(cyc)
	}
}

func (c *Controller) readBottleID(cyc *cycle) (State, error) {
	data, err := c.store.ReadBlock(cyc.ctx, cyc.session.UID, card.BottleIDBlock)
	if err != nil {
		if ctxErr := cyc.ctx.Err(); ctxErr != nil {
			return cyc.state, ctxErr
		}
		if !faults.Recoverable(err) {
			return StateFailed, err
		}
		logging.WarnWithContext(cyc.logger, "card read failed; waiting for a new card", "card_read_failed",
			accessAttrs(cyc, err,
				logging.String(logging.FieldErrorHint, "present a tagged card and hold it still on the reader"),
			)...,
		)
		return StateAwaitCard, nil
	}
	id := catalog.BottleID(card.DecodeBottleID(data))
	cyc.session.BottleID = &id
	cyc.logger.Info("bottle id read from card",
		logging.Int64(logging.FieldBottleID, int64(id)),
		logging.String(logging.FieldEventType, "bottle_id_read"),
	)
	return StateReconcile, nil
}

func (c *Controller) claimAndWrite(cyc *cycle) (State, error) {
	if c.opts.Claims != nil && !cyc.claimHeld {
		if err := c.opts.Claims.Acquire(cyc.ctx); err != nil {
			if ctxErr := cyc.ctx.Err(); ctxErr != nil {
				return cyc.state, ctxErr
			}
			logging.ErrorWithContext(cyc.logger, "failed to acquire claim lock", "claim_lock_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the catalog directory permissions"),
			)
			return StateFailed, err
		}
		cyc.claimHeld = true
	}

	id, ok, err := c.opts.Catalog.FirstUntaggedBottle(cyc.ctx)
	if err != nil {
		if ctxErr := cyc.ctx.Err(); ctxErr != nil {
			return cyc.state, ctxErr
		}
		logging.ErrorWithContext(cyc.logger, "untagged bottle lookup failed", "untagged_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the catalog database"),
		)
		return StateFailed, err
	}
	if !ok {
		c.releaseClaim(cyc)
		cyc.logger.Info("no untagged bottles; waiting for a new card",
			logging.String(logging.FieldEventType, "no_untagged_bottles"),
		)
		return StateAwaitCard, nil
	}
	if id < 0 || id > catalog.MaxCardBottleID {
		err := faults.Wrap(faults.ErrStore, component, "claim", fmt.Sprintf("bottle id %d does not fit in one card byte", id), nil)
		logging.ErrorWithContext(cyc.logger, "untagged bottle cannot be written to a card", "bottle_id_out_of_range",
			logging.Int64(logging.FieldBottleID, int64(id)),
			logging.String(logging.FieldErrorHint, "bottle ids written to cards must be between 0 and 255"),
		)
		return StateFailed, err
	}

	data := card.EncodeBottleID(uint8(id))
	if err := c.store.WriteBlock(cyc.ctx, cyc.session.UID, card.BottleIDBlock, data); err != nil {
		c.releaseClaim(cyc)
		if ctxErr := cyc.ctx.Err(); ctxErr != nil {
			return cyc.state, ctxErr
		}
		if !faults.Recoverable(err) {
			return StateFailed, err
		}
		logging.WarnWithContext(cyc.logger, "card write failed; waiting for a new card", "card_write_failed",
			accessAttrs(cyc, err,
				logging.Int64(logging.FieldBottleID, int64(id)),
				logging.String(logging.FieldErrorHint, "present a blank card and hold it still on the reader"),
			)...,
		)
		return StateAwaitCard, nil
	}
	cyc.session.BottleID = &id
	cyc.logger.Info("bottle id written to card",
		logging.Int64(logging.FieldBottleID, int64(id)),
		logging.String(logging.FieldUID, cyc.session.UID.String()),
		logging.String(logging.FieldEventType, "bottle_id_written"),
	)
	return StateReconcile, nil
}

// accessAttrs describes a failed card access for the retry warning.
func accessAttrs(cyc *cycle, err error, extra ...logging.Attr) []logging.Attr {
	attrs := []logging.Attr{
		logging.Error(err),
		logging.String(logging.FieldUID, cyc.session.UID.String()),
		logging.Int(logging.FieldBlock, card.BottleIDBlock),
		logging.String("error_kind", string(faults.KindOf(err))),
	}
	if accessErr, ok := card.AsBlockAccess(err); ok {
		attrs = append(attrs, logging.String("reason", string(accessErr.Reason)))
	}
	return append(attrs, extra...)
}

func (c *Controller) releaseClaim(cyc *cycle) {
	if !cyc.claimHeld || c.opts.Claims == nil {
		return
	}
	cyc.claimHeld = false
	if err := c.opts.Claims.Release(); err != nil {
		cyc.logger.Warn("failed to release claim lock", logging.Error(err))
	}
}

func (c *Controller) reconcile(cyc *cycle) error {
	if cyc.session.BottleID == nil {
		return faults.Wrap(faults.ErrConfiguration, component, "reconcile", "no bottle id in session", nil)
	}
	id := *cyc.session.BottleID
	switch c.opts.Mode.Action {
	case LookupAndEncodeLabel:
		return c.encodeLabel(cyc, id)
	case PersistTagClaim:
		return c.persistClaim(cyc, id)
	default:
		return c.lookupComposition(cyc, id)
	}
}

func (c *Controller) lookupComposition(cyc *cycle, id catalog.BottleID) error {
	recipe, ok, err := c.opts.Catalog.RecipeFor(cyc.ctx, id)
	if err != nil {
		return c.reconcileFault(cyc, "recipe lookup failed", "recipe_lookup_failed", err)
	}
	if !ok {
		err := faults.Wrap(faults.ErrStore, component, "reconcile", fmt.Sprintf("no recipe mapped to bottle %d", id), nil)
		return c.reconcileFault(cyc, "bottle has no recipe", "recipe_missing", err)
	}
	cyc.session.RecipeID = &recipe

	rows, err := c.opts.Catalog.CompositionFor(cyc.ctx, recipe)
	if err != nil {
		return c.reconcileFault(cyc, "composition lookup failed", "composition_lookup_failed", err)
	}
	if len(rows) == 0 {
		err := faults.Wrap(faults.ErrStore, component, "reconcile", fmt.Sprintf("recipe %d has no composition rows", recipe), nil)
		return c.reconcileFault(cyc, "recipe has no composition", "composition_empty", err)
	}
	cyc.session.Composition = rows
	for _, row := range rows {
		cyc.logger.Info("composition row",
			logging.Int64("recipe_id", int64(recipe)),
			logging.Int64("granulate_id", int64(row.GranulateID)),
			logging.Any("quantity", row.Quantity),
		)
	}
	return nil
}

func (c *Controller) encodeLabel(cyc *cycle, id catalog.BottleID) error {
	rendered, err := RenderLabel(cyc.ctx, c.opts.Catalog, c.opts.Encoder, c.opts.LabelDir, id)
	if err != nil && faults.KindOf(err) != faults.KindEncode {
		return c.reconcileFault(cyc, "label lookup failed", "label_lookup_failed", err)
	}
	recipe := rendered.Recipe
	cyc.session.RecipeID = &recipe
	cyc.session.TaggedAt = rendered.TaggedAt
	if err != nil {
		return c.reconcileFault(cyc, "label encoding failed", "label_encode_failed", err)
	}
	cyc.session.LabelPath = rendered.Path
	cyc.logger.Info("label written",
		logging.Int64(logging.FieldBottleID, int64(id)),
		logging.String("path", rendered.Path),
		logging.String(logging.FieldEventType, "label_written"),
	)
	return nil
}

func (c *Controller) persistClaim(cyc *cycle, id catalog.BottleID) error {
	at := c.opts.Clock().UTC()
	if err := c.opts.Catalog.MarkTagged(cyc.ctx, id, at); err != nil {
		return c.reconcileFault(cyc, "failed to persist tag claim", "tag_claim_failed", err)
	}
	cyc.session.TaggedAt = &at
	cyc.logger.Info("bottle marked tagged",
		logging.Int64(logging.FieldBottleID, int64(id)),
		logging.String(logging.FieldEventType, "bottle_tagged"),
	)
	return nil
}

// reconcileFault logs a Reconcile failure. Context errors pass through
// unlogged.
func (c *Controller) reconcileFault(cyc *cycle, msg, eventType string, err error) error {
	if ctxErr := cyc.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	logging.ErrorWithContext(cyc.logger, msg, eventType,
		logging.Error(err),
		logging.String("error_kind", string(faults.KindOf(err))),
		logging.String(logging.FieldErrorHint, "check the catalog entries for this bottle"),
	)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
