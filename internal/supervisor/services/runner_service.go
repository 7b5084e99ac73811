// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package services

import "context"

// ContextRunner blocks until ctx is done and then releases what it owns.
// The relay registry, the CRDT server and the NATS bridge implement it.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService adapts a ContextRunner to suture.Service.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewRunnerService names runner for supervisor logs.
func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

func (s *RunnerService) String() string {
	return s.name
}

// Shutdowner is satisfied by *fanout.EmbeddedServer.
type Shutdowner interface {
	Shutdown()
}

// ShutdownService owns the shutdown of something started before the tree,
// such as the embedded NATS server the bridge connects to at startup.
type ShutdownService struct {
	target Shutdowner
	name   string
}

// NewShutdownService names target for supervisor logs.
func NewShutdownService(name string, target Shutdowner) *ShutdownService {
	return &ShutdownService{target: target, name: name}
}

// Serve waits for ctx and shuts the target down.
func (s *ShutdownService) Serve(ctx context.Context) error {
	<-ctx.Done()
	s.target.Shutdown()
	return ctx.Err()
}

func (s *ShutdownService) String() string {
	return s.name
}
