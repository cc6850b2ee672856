package hotplug

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"tagstation/internal/faults"
)

func fakeSource(events chan netlink.UEvent, connectErr error) eventSource {
	return func() (<-chan netlink.UEvent, <-chan error, func(), error) {
		if connectErr != nil {
			return nil, nil, nil, connectErr
		}
		return events, make(chan error), func() {}, nil
	}
}

func newTestWaiter(device string, source eventSource) *Waiter {
	w := NewWaiter(device, nil)
	w.source = source
	w.recheck = 10 * time.Millisecond
	return w
}

func TestWaitReturnsImmediatelyWhenPresent(t *testing.T) {
	device := filepath.Join(t.TempDir(), "ttyUSB0")
	if err := os.WriteFile(device, nil, 0o600); err != nil {
		t.Fatalf("create device: %v", err)
	}
	called := false
	w := newTestWaiter(device, func() (<-chan netlink.UEvent, <-chan error, func(), error) {
		called = true
		return nil, nil, func() {}, nil
	})
	if err := w.Wait(context.Background(), 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if called {
		t.Fatal("netlink should not be opened when the device already exists")
	}
}

func TestWaitReturnsAfterAddEvent(t *testing.T) {
	device := filepath.Join(t.TempDir(), "ttyUSB0")
	events := make(chan netlink.UEvent, 1)
	w := newTestWaiter(device, fakeSource(events, nil))
	w.recheck = time.Hour

	done := make(chan error, 1)
	go func() { done <- w.Wait(context.Background(), 5*time.Second) }()

	if err := os.WriteFile(device, nil, 0o600); err != nil {
		t.Fatalf("create device: %v", err)
	}
	events <- netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "ttyUSB0", "SUBSYSTEM": "tty"}}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after add event")
	}
}

func TestWaitFallsBackToPollingWithoutNetlink(t *testing.T) {
	device := filepath.Join(t.TempDir(), "ttyUSB0")
	w := newTestWaiter(device, fakeSource(nil, errors.New("permission denied")))

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(device, nil, 0o600)
	}()
	if err := w.Wait(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestWaitTimeoutIsTransportFault(t *testing.T) {
	device := filepath.Join(t.TempDir(), "never")
	w := newTestWaiter(device, fakeSource(make(chan netlink.UEvent), nil))

	err := w.Wait(context.Background(), 30*time.Millisecond)
	if !errors.Is(err, faults.ErrTransport) {
		t.Fatalf("expected transport fault, got %v", err)
	}
}

func TestWaitCancellationReturnsContextError(t *testing.T) {
	device := filepath.Join(t.TempDir(), "never")
	w := newTestWaiter(device, fakeSource(make(chan netlink.UEvent), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Wait(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDeviceName(t *testing.T) {
	cases := []struct {
		env  map[string]string
		want string
	}{
		{env: map[string]string{"DEVNAME": "/dev/ttyAMA0"}, want: "/dev/ttyAMA0"},
		{env: map[string]string{"DEVNAME": "ttyUSB1"}, want: "/dev/ttyUSB1"},
		{env: map[string]string{"DEVPATH": "/devices/platform/serial8250/tty/ttyS0"}, want: "/dev/ttyS0"},
		{env: map[string]string{}, want: ""},
	}
	for _, tc := range cases {
		if got := deviceName(netlink.UEvent{Env: tc.env}); got != tc.want {
			t.Errorf("deviceName(%v) = %q, want %q", tc.env, got, tc.want)
		}
	}
}

func TestBuildMatcherSelectsTTYAdds(t *testing.T) {
	m := buildMatcher()
	add := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "tty"}}
	if !m.Evaluate(add) {
		t.Fatal("expected tty add event to match")
	}
	remove := netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "tty"}}
	if m.Evaluate(remove) {
		t.Fatal("expected tty remove event not to match")
	}
	block := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}}
	if m.Evaluate(block) {
		t.Fatal("expected block add event not to match")
	}
}
