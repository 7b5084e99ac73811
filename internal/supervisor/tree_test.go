// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// countingService fails failures times and then runs until canceled.
type countingService struct {
	name     string
	failures int32
	starts   atomic.Int32
	stops    atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	defer s.stops.Add(1)
	if n <= s.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestTreeConfigDefaults(t *testing.T) {
	tree := NewSupervisorTree(quietLogger(), TreeConfig{FailureBackoff: time.Second})

	if tree.config.FailureThreshold != 5 || tree.config.FailureDecay != 30 {
		t.Errorf("failure defaults not applied: %+v", tree.config)
	}
	if tree.config.FailureBackoff != time.Second {
		t.Errorf("explicit backoff overridden: %v", tree.config.FailureBackoff)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", tree.config.ShutdownTimeout)
	}
	if tree.Root() == nil {
		t.Error("nil root")
	}
}

func TestTreeStartsAndStopsEveryLayer(t *testing.T) {
	tree := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	fan := &countingService{name: "nats-bridge"}
	rooms := &countingService{name: "relay-registry"}
	api := &countingService{name: "http-server"}
	tree.AddFanoutService(fan)
	tree.AddRoomService(rooms)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	eventually(t, func() bool {
		return fan.starts.Load() == 1 && rooms.starts.Load() == 1 && api.starts.Load() == 1
	}, "not every layer started")

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}

	for _, s := range []*countingService{fan, rooms, api} {
		if s.stops.Load() != 1 {
			t.Errorf("%s stopped %d times", s.name, s.stops.Load())
		}
	}
	if report, err := tree.UnstoppedServiceReport(); err != nil || len(report) != 0 {
		t.Errorf("unstopped services: %v %v", report, err)
	}
}

func TestTreeRestartsFailingServiceOnly(t *testing.T) {
	tree := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	flaky := &countingService{name: "nats-bridge", failures: 2}
	stable := &countingService{name: "crdt-server"}
	tree.AddFanoutService(flaky)
	tree.AddRoomService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	eventually(t, func() bool { return flaky.starts.Load() >= 3 }, "failing service not restarted")
	if stable.starts.Load() != 1 {
		t.Errorf("stable service started %d times", stable.starts.Load())
	}

	cancel()
	<-errCh
}
