// Package goextensions provides a filesystem-driven extension lifecycle
// orchestrator for Go host applications. It discovers extension packages
// under a root directory, resolves their declared dependencies into a
// deterministic load order, activates each extension against a scoped host
// capability surface, fans out host lifecycle signals, and tears the set
// down in reverse order.
//
// Key Features:
//   - Filesystem discovery with JSON/YAML descriptors and synthesized
//     fallback descriptors for undocumented packages
//   - Dependency resolution with exact cycle reporting and a stable,
//     discovery-ordered topological load order
//   - Per-extension fault isolation: a panic or error in one extension
//     never takes down the host or its siblings
//   - Optional lifecycle handlers (host-ready, content-ready, first-tick,
//     domain enter/exit, shutdown) detected by interface assertion
//   - Scoped capability surface per extension: namespaced commands,
//     keybinds, persistent configuration and structured logging
//   - Allow/deny activation policy hot-watched with Argus
//   - Semantic version constraints with warn-and-continue compatibility
//     checks
//
// Basic Usage:
//
//	orch, err := goextensions.NewOrchestrator(goextensions.Config{
//		RootDir:     "./extensions",
//		HostVersion: "2.4.0",
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Extension packages register their factories at build time.
//	orch.EntryPoints().MustRegister("map-overlay.ext", NewMapOverlay)
//
//	if err := orch.Run(); err != nil {
//		log.Fatal(err)
//	}
//	orch.HostReady()
//	defer orch.Close()
//
// Failure Containment:
// Discovery, resolution, activation and signal dispatch all contain
// failures at the single extension they concern. The diagnostics surface
// (Records, Session) exposes every record's state, error message and
// compatibility warnings for the lifetime of the session.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package goextensions
