// entrypoint.go: Extension contract and entry-point resolution
//
// Reflection-based discovery of "the" extension implementation inside a
// loaded binary does not translate to Go; instead, entry points are
// resolved through a pluggable EntryPointResolver whose default
// implementation is a build-time registry. Extension authors register a
// factory under the locator their descriptor declares, typically from an
// init function in the extension's package.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"sort"
	"strings"
	"sync"
)

// Extension is the minimal contract every extension implementation fulfills.
//
// Initialize receives the per-extension capability surface and runs exactly
// once, during the Activate phase. Everything else an extension can react
// to is expressed as an optional handler interface; an extension that does
// not implement a given handler is silently skipped during dispatch of that
// signal.
type Extension interface {
	// Initialize prepares the extension using the capability surface it was
	// handed. Returning an error parks the extension in the errored state
	// without affecting other extensions.
	Initialize(host *HostContext) error
}

// Optional lifecycle handler interfaces. The orchestrator probes for these
// with type assertions at dispatch time.

// HostReadyHandler is notified once the host finishes its own startup.
type HostReadyHandler interface {
	OnHostReady() error
}

// ContentReadyHandler is notified once host content registration completes.
type ContentReadyHandler interface {
	OnContentReady() error
}

// FirstTickHandler is notified on the host's first update tick.
type FirstTickHandler interface {
	OnFirstTick() error
}

// DomainEnterHandler is notified when a domain scope is entered.
type DomainEnterHandler interface {
	OnDomainEntered() error
}

// DomainExitHandler is notified when a domain scope is exited.
type DomainExitHandler interface {
	OnDomainExited() error
}

// ShutdownHandler is the teardown entry point, invoked in reverse load
// order during session shutdown.
type ShutdownHandler interface {
	OnShutdown() error
}

// ExtensionFactory constructs a fresh extension instance.
type ExtensionFactory func() Extension

// EntryPointResolver resolves a descriptor's entry-point locator to the
// candidate implementations behind it.
//
// The narrow contract keeps the loading mechanism pluggable: the default
// EntryPointRegistry is compile-time registration, but hosts with a plugin
// ABI of their own can substitute any resolver.
type EntryPointResolver interface {
	// Resolve returns the candidate factories for a locator, in a
	// deterministic order. An empty result means the entry point exists
	// nowhere in this build.
	Resolve(locator string) []ResolvedEntryPoint
}

// ResolvedEntryPoint is one candidate implementation behind a locator.
type ResolvedEntryPoint struct {
	Name    string
	Factory ExtensionFactory
}

// EntryPointRegistry is the build-time entry-point resolver.
//
// Extensions register themselves under a locator name; the orchestrator
// resolves descriptors' entryPoint fields against the registry. An exact
// locator match wins; otherwise every registered name with the locator as
// a prefix is a candidate, which lets one binary expose several variants
// under a shared stem while keeping resolution deterministic.
type EntryPointRegistry struct {
	mu        sync.RWMutex
	factories map[string]ExtensionFactory
}

// NewEntryPointRegistry creates an empty entry-point registry.
func NewEntryPointRegistry() *EntryPointRegistry {
	return &EntryPointRegistry{
		factories: make(map[string]ExtensionFactory),
	}
}

// Register associates a factory with a locator name. Registering the same
// name twice is a conflict; the first registration wins and an error is
// returned for the second.
func (r *EntryPointRegistry) Register(name string, factory ExtensionFactory) error {
	if name == "" || factory == nil {
		return NewRegistrationConflictError("entrypoint", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return NewRegistrationConflictError("entrypoint", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for package init functions; it panics on
// conflict, which surfaces duplicate registrations at process start.
func (r *EntryPointRegistry) MustRegister(name string, factory ExtensionFactory) {
	if err := r.Register(name, factory); err != nil {
		panic("goextensions: duplicate entry point registration: " + name)
	}
}

// Resolve implements EntryPointResolver.
func (r *EntryPointRegistry) Resolve(locator string) []ResolvedEntryPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if factory, ok := r.factories[locator]; ok {
		return []ResolvedEntryPoint{{Name: locator, Factory: factory}}
	}

	var candidates []ResolvedEntryPoint
	for name, factory := range r.factories {
		if strings.HasPrefix(name, locator) {
			candidates = append(candidates, ResolvedEntryPoint{Name: name, Factory: factory})
		}
	}

	// Map iteration order is random; sort so prefix resolution is stable.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Name < candidates[j].Name
	})
	return candidates
}

// Names returns all registered locator names, sorted.
func (r *EntryPointRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
