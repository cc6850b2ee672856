package hotplug

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"tagstation/internal/faults"
	"tagstation/internal/logging"
)

const (
	component       = "hotplug"
	defaultRecheck  = time.Second
	ttySubsystem    = "tty"
	addActionFilter = "add"
)

type eventSource func() (events <-chan netlink.UEvent, errs <-chan error, stop func(), err error)

// Waiter blocks until a device path exists.
type Waiter struct {
	device  string
	logger  *slog.Logger
	source  eventSource
	recheck time.Duration
}

// NewWaiter returns a Waiter for device that listens for tty add events.
func NewWaiter(device string, logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Waiter{
		device:  device,
		logger:  logging.NewComponentLogger(logger, component),
		source:  netlinkSource(buildMatcher()),
		recheck: defaultRecheck,
	}
}

// Wait returns once the device exists. A positive timeout bounds the wait
// and its expiry is reported as a transport fault; cancellation of ctx is
// returned as ctx.Err().
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) error {
	if w.present() {
		return nil
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	events, errs, stop, err := w.source()
	if err != nil {
		w.logger.Warn("failed to connect to netlink socket; polling for reader device",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the process may open netlink sockets"),
			logging.String(logging.FieldImpact, "reader detection falls back to polling"),
		)
	} else {
		defer stop()
	}

	w.logger.Info("waiting for reader device",
		logging.String("device", w.device),
		logging.String(logging.FieldEventType, "reader_wait_started"),
	)

	ticker := time.NewTicker(w.recheck)
	defer ticker.Stop()

	for {
		if w.present() {
			w.logger.Info("reader device available",
				logging.String("device", w.device),
				logging.String(logging.FieldEventType, "reader_device_ready"),
			)
			return nil
		}
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return faults.Wrap(faults.ErrTransport, component, "wait", "reader device "+w.device+" did not appear", waitCtx.Err())
		case ev := <-events:
			w.logger.Debug("tty device added",
				logging.String("devname", deviceName(ev)),
				logging.String("action", string(ev.Action)),
			)
		case err := <-errs:
			w.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
			)
		case <-ticker.C:
		}
	}
}

func (w *Waiter) present() bool {
	_, err := os.Stat(w.device)
	return err == nil
}

func netlinkSource(matcher netlink.Matcher) eventSource {
	return func() (<-chan netlink.UEvent, <-chan error, func(), error) {
		conn := new(netlink.UEventConn)
		if err := conn.Connect(netlink.UdevEvent); err != nil {
			return nil, nil, nil, err
		}
		queue := make(chan netlink.UEvent)
		errs := make(chan error)
		quit := conn.Monitor(queue, errs, matcher)
		stop := func() {
			close(quit)
			_ = conn.Close()
		}
		return queue, errs, stop, nil
	}
}

// buildMatcher matches SUBSYSTEM=tty, ACTION=add.
func buildMatcher() netlink.Matcher {
	action := addActionFilter
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": ttySubsystem,
		},
	})
	return rules
}

// deviceName gets the device path from a uevent.
func deviceName(ev netlink.UEvent) string {
	name := ev.Env["DEVNAME"]
	if name == "" {
		devpath := ev.Env["DEVPATH"]
		if devpath == "" {
			return ""
		}
		name = filepath.Base(devpath)
	}
	if !strings.HasPrefix(name, "/") {
		name = "/dev/" + name
	}
	return name
}
