// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

// Package services adapts the gateway's components to suture.Service.
//
//	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
//	tree.AddRoomService(services.NewRunnerService("relay-registry", registry))
//	tree.AddFanoutService(services.NewRunnerService("nats-bridge", bridge))
//	tree.AddFanoutService(services.NewShutdownService("nats-server", embedded))
package services
