// types.go: Common data types for the extension orchestration system
//
// This file contains the shared data models used throughout the extension
// system: the per-extension state machine, the mutable record the
// orchestrator keeps for every discovered descriptor, and the read-only
// status snapshot exposed through the diagnostics surface.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"time"
)

// ExtensionState represents the lifecycle state of one extension within a
// session.
//
// Transitions, all driven by the orchestrator on the orchestration thread:
//
//	Discovered -> Disabled          (explicit policy, before activation)
//	Discovered -> DependencyError   (missing dependency or cycle membership)
//	Discovered -> Loading -> Loaded (successful activation)
//	Discovered -> Loading -> Errored (activation failure)
//	Loaded -> Errored               (signal handler or teardown failure)
//	Loaded -> Unloaded              (session teardown)
//
// DependencyError and Errored are terminal for the session; Loaded is the
// only state that receives lifecycle signals.
type ExtensionState int

const (
	StateDiscovered ExtensionState = iota
	StateDisabled
	StateDependencyError
	StateLoading
	StateLoaded
	StateErrored
	StateUnloaded
)

// String returns a human-readable representation of the extension state.
func (s ExtensionState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateDisabled:
		return "disabled"
	case StateDependencyError:
		return "dependency-error"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// ExtensionRecord is the mutable per-extension bookkeeping entry owned
// exclusively by the orchestrator. It is created during discovery with
// StateDiscovered and mutated only on the orchestration thread; extensions
// are never handed a reference to another extension's record.
type ExtensionRecord struct {
	// Descriptor is the immutable descriptor this record tracks.
	Descriptor *Descriptor

	// State is the current lifecycle state.
	State ExtensionState

	// ErrorMessage carries the terminal failure reason, if any.
	ErrorMessage string

	// CompatWarning carries a non-fatal host-version mismatch note.
	CompatWarning string

	// Instance is the activated extension, present only while State is
	// Loaded.
	Instance Extension

	// Host is the capability surface handed to the instance at activation.
	Host *HostContext

	// ActivatedAt is the time the record entered StateLoaded.
	ActivatedAt time.Time

	// discoveryIndex preserves stable discovery order for tie-breaking.
	discoveryIndex int
}

// Identity is a convenience accessor for the descriptor identity.
func (r *ExtensionRecord) Identity() string {
	return r.Descriptor.Identity
}

// Status returns a read-only snapshot of the record for diagnostics.
func (r *ExtensionRecord) Status() ExtensionStatus {
	return ExtensionStatus{
		Identity:      r.Descriptor.Identity,
		DisplayName:   r.Descriptor.Display(),
		Version:       r.Descriptor.Version,
		State:         r.State,
		ErrorMessage:  r.ErrorMessage,
		CompatWarning: r.CompatWarning,
		Synthesized:   r.Descriptor.Synthesized,
		ActivatedAt:   r.ActivatedAt,
	}
}

// ExtensionStatus is the diagnostics view of one extension record.
//
// The diagnostics query surface is the sole way failures are observed:
// records in DependencyError or Errored never receive signals but remain
// visible here for the lifetime of the session.
type ExtensionStatus struct {
	Identity      string         `json:"identity"`
	DisplayName   string         `json:"display_name"`
	Version       string         `json:"version"`
	State         ExtensionState `json:"state"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CompatWarning string         `json:"compat_warning,omitempty"`
	Synthesized   bool           `json:"synthesized,omitempty"`
	ActivatedAt   time.Time      `json:"activated_at,omitzero"`
}

// SessionInfo summarizes one orchestration session for diagnostics.
type SessionInfo struct {
	SessionID  string                 `json:"session_id"`
	StartedAt  time.Time              `json:"started_at"`
	Extensions int                    `json:"extensions"`
	ByState    map[string]int         `json:"by_state"`
	Warnings   []string               `json:"warnings,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
