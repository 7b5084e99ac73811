// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRunner struct {
	runs     atomic.Int32
	released atomic.Bool
}

func (f *fakeRunner) RunWithContext(ctx context.Context) error {
	f.runs.Add(1)
	<-ctx.Done()
	f.released.Store(true)
	return ctx.Err()
}

type fakeShutdowner struct{ calls atomic.Int32 }

func (f *fakeShutdowner) Shutdown() { f.calls.Add(1) }

func TestRunnerService(t *testing.T) {
	r := &fakeRunner{}
	svc := NewRunnerService("relay-registry", r)
	if svc.String() != "relay-registry" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	if r.runs.Load() != 1 || !r.released.Load() {
		t.Errorf("runs=%d released=%v", r.runs.Load(), r.released.Load())
	}
}

func TestShutdownService(t *testing.T) {
	target := &fakeShutdowner{}
	svc := NewShutdownService("nats-server", target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Serve(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if target.calls.Load() != 0 {
		t.Fatal("target shut down before cancel")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	if target.calls.Load() != 1 {
		t.Errorf("shutdown calls = %d, want 1", target.calls.Load())
	}
}
