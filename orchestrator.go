// orchestrator.go: Extension lifecycle orchestration driver
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// Lifecycle signal names, used in logs and error context.
const (
	SignalHostReady     = "host-ready"
	SignalContentReady  = "content-ready"
	SignalFirstTick     = "first-tick"
	SignalDomainEntered = "domain-entered"
	SignalDomainExited  = "domain-exited"
	SignalShutdown      = "shutdown"
)

// Orchestrator drives extensions through discovery, dependency resolution,
// activation, steady-state signal dispatch and reverse-order teardown.
//
// One orchestrator runs one session at a time: Run executes the
// Discover -> Resolve -> Activate pipeline exactly once, after which the
// host fires lifecycle signals at its own milestones and finally calls
// Shutdown. After Shutdown the orchestrator is back in its uninitialized
// state and Run may be called again for a fresh session.
//
// The record table is owned exclusively by the orchestrator and mutated
// only on the thread calling Run, the signal methods and Shutdown,
// typically the host's single update thread. The diagnostics accessors
// (Records, Session) take read locks and may be called from anywhere.
//
// Failure containment: every error during discovery, resolution,
// activation, dispatch or teardown is contained at the single extension it
// concerns. The only errors Run itself returns are fatal conditions in the
// orchestrator's own bookkeeping (missing package root, invalid
// configuration, session already active), and those leave prior state
// intact.
//
// Example usage:
//
//	orch, err := goextensions.NewOrchestrator(config, logger)
//	if err != nil {
//	    return err
//	}
//	orch.EntryPoints().MustRegister("map-overlay.ext", NewMapOverlay)
//
//	if err := orch.Run(); err != nil {
//	    return err
//	}
//	orch.HostReady()
//	// ... host main loop, domain scopes, etc.
//	orch.Shutdown()
type Orchestrator struct {
	config Config
	logger Logger

	entryPoints *EntryPointRegistry
	resolver    EntryPointResolver
	commands    *CommandRegistry
	keybinds    *KeybindRegistry
	policy      *PolicyWatcher

	hostVersion *Version

	mu            sync.RWMutex
	sessionID     string
	sessionStart  time.Time
	records       []*ExtensionRecord
	byIdentity    map[string]*ExtensionRecord
	loadableCount int
	sessionActive bool
}

// NewOrchestrator creates an orchestrator for the given configuration.
//
// When the configuration names a policy file, the activation policy
// watcher starts immediately and keeps running across sessions; call Close
// to stop it for good.
func NewOrchestrator(config Config, logger any) (*Orchestrator, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	internalLogger := NewLogger(logger)

	var hostVersion *Version
	if config.HostVersion != "" {
		parsed, err := ParseVersion(config.HostVersion)
		if err != nil {
			return nil, err
		}
		hostVersion = parsed
	}

	registry := NewEntryPointRegistry()
	o := &Orchestrator{
		config:      config,
		logger:      internalLogger,
		entryPoints: registry,
		resolver:    registry,
		commands:    NewCommandRegistry(),
		keybinds:    NewKeybindRegistry(),
		hostVersion: hostVersion,
		byIdentity:  make(map[string]*ExtensionRecord),
	}

	if config.PolicyPath != "" {
		o.policy = NewPolicyWatcher(config.PolicyPath, config.PolicyPollInterval, internalLogger)
		if err := o.policy.Start(); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// EntryPoints returns the orchestrator's build-time entry-point registry.
// Extension packages register their factories here before Run.
func (o *Orchestrator) EntryPoints() *EntryPointRegistry {
	return o.entryPoints
}

// SetEntryPointResolver replaces the default registry-backed resolver.
// Must be called before Run.
func (o *Orchestrator) SetEntryPointResolver(resolver EntryPointResolver) {
	if resolver != nil {
		o.resolver = resolver
	}
}

// Commands returns the host-wide command registry for invoking extension
// commands from the host.
func (o *Orchestrator) Commands() *CommandRegistry {
	return o.commands
}

// Keybinds returns the host-wide keybind registry.
func (o *Orchestrator) Keybinds() *KeybindRegistry {
	return o.keybinds
}

// Run executes the Discover -> Resolve -> Activate pipeline for a fresh
// session. It is synchronous: when it returns, every extension has reached
// one of Loaded, Errored, DependencyError or Disabled, and the diagnostics
// surface reflects exactly the set an observer should treat as running.
func (o *Orchestrator) Run() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sessionActive {
		return NewSessionActiveError("run")
	}

	report, err := o.discover()
	if err != nil {
		return err
	}

	o.sessionID = uuid.NewString()
	o.sessionStart = timecache.CachedTime()

	o.buildRecords(report)
	o.resolve()
	o.activate()

	o.sessionActive = true

	o.logger.Info("Orchestration session started",
		"session_id", o.sessionID,
		"extensions", len(o.records),
		"loaded", o.countState(StateLoaded),
		"dependency_errors", o.countState(StateDependencyError),
		"errored", o.countState(StateErrored),
		"disabled", o.countState(StateDisabled))
	return nil
}

// discover runs the discovery engine. A failure here is the one fatal
// path out of Run; nothing has been mutated yet.
func (o *Orchestrator) discover() (*DiscoveryReport, error) {
	engine := NewDiscoveryEngine(o.config, o.logger)
	report, err := engine.Discover()
	if err != nil {
		o.logger.Error("Discovery aborted", "error", err)
		return nil, err
	}
	return report, nil
}

// buildRecords turns discovered descriptors into Discovered records.
func (o *Orchestrator) buildRecords(report *DiscoveryReport) {
	o.records = make([]*ExtensionRecord, 0, len(report.Descriptors))
	o.byIdentity = make(map[string]*ExtensionRecord, len(report.Descriptors))

	for i, descriptor := range report.Descriptors {
		record := &ExtensionRecord{
			Descriptor:     descriptor,
			State:          StateDiscovered,
			discoveryIndex: i,
		}
		o.records = append(o.records, record)
		o.byIdentity[descriptor.Identity] = record
	}
}

// resolve classifies records against the dependency graph and reorders the
// record table: loadable records in resolved order first, then blocked
// records in stable discovery order.
func (o *Orchestrator) resolve() {
	descriptors := make([]*Descriptor, len(o.records))
	for i, record := range o.records {
		descriptors[i] = record.Descriptor
	}

	resolution := ResolveDependencies(descriptors)

	ordered := make([]*ExtensionRecord, 0, len(o.records))
	for _, descriptor := range resolution.Order {
		ordered = append(ordered, o.byIdentity[descriptor.Identity])
	}
	o.loadableCount = len(ordered)

	for _, record := range o.records {
		identity := record.Identity()
		if !resolution.Blocked(identity) {
			continue
		}

		record.State = StateDependencyError

		// The reason names exactly what blocked the extension; a record can
		// carry both a missing dependency and a cycle at once.
		var parts []string
		if missing := resolution.Missing[identity]; len(missing) > 0 {
			parts = append(parts, "missing dependencies: "+strings.Join(missing, ", "))
			o.logger.Warn("Extension has undiscovered dependencies",
				"identity", identity,
				"error", NewMissingDependencyError(identity, missing))
		}
		if cycle := resolution.Cyclic[identity]; len(cycle) > 0 {
			parts = append(parts, "dependency cycle: "+strings.Join(cycle, " -> "))
			o.logger.Warn("Extension is on a dependency cycle",
				"identity", identity,
				"error", NewCircularDependencyError(identity, cycle))
		}
		record.ErrorMessage = strings.Join(parts, "; ")
		ordered = append(ordered, record)
	}

	o.records = ordered
}

// activate walks the loadable records in resolved order and activates each
// one through the fault isolation guard. One extension's failure never
// aborts activation of the rest.
func (o *Orchestrator) activate() {
	policy := o.currentPolicy()

	for _, record := range o.records[:o.loadableCount] {
		if record.State != StateDiscovered {
			continue
		}

		if policy.Disabled(record.Identity()) {
			record.State = StateDisabled
			o.logger.Info("Extension disabled by policy", "identity", record.Identity())
			continue
		}

		o.checkHostCompatibility(record)
		o.checkDependencyConstraints(record)
		o.activateRecord(record)
	}
}

func (o *Orchestrator) currentPolicy() *ActivationPolicy {
	if o.policy == nil {
		return nil
	}
	return o.policy.Current()
}

// checkHostCompatibility evaluates the descriptor's minHostVersion against
// the running host version. Mismatches and malformed constraints both
// attach a non-fatal warning; the extension still loads.
func (o *Orchestrator) checkHostCompatibility(record *ExtensionRecord) {
	constraintExpr := record.Descriptor.MinHostVersion
	if constraintExpr == "" || o.hostVersion == nil {
		return
	}

	constraint, err := ParseConstraint(constraintExpr)
	if err != nil {
		record.CompatWarning = err.Error()
		o.logger.Warn("Malformed minimum host version constraint, treating as unconstrained",
			"identity", record.Identity(),
			"constraint", constraintExpr)
		return
	}

	if !constraint.Satisfies(o.hostVersion) {
		warning := NewCompatibilityWarning(record.Identity(), constraintExpr, o.config.HostVersion)
		record.CompatWarning = warning.Error()
		o.logger.Warn("Extension declares a minimum host version the host does not satisfy; loading anyway",
			"identity", record.Identity(),
			"min_host_version", constraintExpr,
			"host_version", o.config.HostVersion)
	}
}

// checkDependencyConstraints evaluates declared dependency version
// constraints against the discovered dependency versions. Like host
// compatibility this warns and continues; the load order already
// guarantees the dependency is present.
func (o *Orchestrator) checkDependencyConstraints(record *ExtensionRecord) {
	for _, ref := range record.Descriptor.Dependencies {
		if ref.VersionConstraint == "" {
			continue
		}
		dep, ok := o.byIdentity[ref.Identity]
		if !ok {
			continue
		}

		constraint, err := ParseConstraint(ref.VersionConstraint)
		if err != nil {
			o.logger.Warn("Malformed dependency version constraint, treating as unconstrained",
				"identity", record.Identity(),
				"dependency", ref.Identity,
				"constraint", ref.VersionConstraint)
			continue
		}

		depVersion, err := ParseVersion(dep.Descriptor.Version)
		if err != nil || constraint.Satisfies(depVersion) {
			continue
		}

		o.logger.Warn("Dependency version does not satisfy declared constraint; loading anyway",
			"identity", record.Identity(),
			"dependency", ref.Identity,
			"dependency_version", dep.Descriptor.Version,
			"constraint", ref.VersionConstraint)
	}
}

// activateRecord performs the activation sequence for one record: resolve
// the entry point, instantiate, build the capability surface, initialize.
func (o *Orchestrator) activateRecord(record *ExtensionRecord) {
	record.State = StateLoading
	identity := record.Identity()
	locator := record.Descriptor.EntryPoint

	candidates := o.resolver.Resolve(locator)
	if len(candidates) == 0 {
		err := NewEntryPointNotFoundError(identity, locator, nil)
		record.State = StateErrored
		record.ErrorMessage = err.Error()
		o.logger.Error("No extension implementation behind entry point",
			"identity", identity,
			"entry_point", locator)
		return
	}
	if len(candidates) > 1 {
		names := make([]string, len(candidates))
		for i, candidate := range candidates {
			names[i] = candidate.Name
		}
		o.logger.Warn("Entry point resolved to multiple candidates, using the first",
			"identity", identity,
			"entry_point", locator,
			"candidates", names)
	}
	factory := candidates[0].Factory

	host, err := o.buildHostContext(record)
	if err != nil {
		wrapped := NewActivationFailedError(identity, err)
		record.State = StateErrored
		record.ErrorMessage = wrapped.Error()
		o.logger.Error("Failed to build capability surface",
			"identity", identity,
			"error", wrapped)
		return
	}
	record.Host = host

	// Instantiation and initialization are extension-owned code; both run
	// inside the guard.
	ok := guard(o.logger, record, "initialization", func() error {
		instance := factory()
		if instance == nil {
			return NewNoImplementationError(identity, locator)
		}
		record.Instance = instance
		return instance.Initialize(host)
	})
	if !ok {
		o.releaseCapabilities(record)
		return
	}

	record.State = StateLoaded
	record.ActivatedAt = timecache.CachedTime()
	o.logger.Info("Extension loaded",
		"identity", identity,
		"version", record.Descriptor.Version,
		"synthesized", record.Descriptor.Synthesized)
}

// buildHostContext assembles the per-extension capability surface.
func (o *Orchestrator) buildHostContext(record *ExtensionRecord) (*HostContext, error) {
	identity := record.Identity()

	store, err := newConfigStore(o.config.ConfigStoreDir, identity)
	if err != nil {
		return nil, err
	}

	return &HostContext{
		Identity:    identity,
		PackageDir:  record.Descriptor.PackageDir,
		HostVersion: o.config.HostVersion,
		Logger:      o.logger.With("extension", identity),
		Config:      store,
		Commands:    &ScopedCommands{identity: identity, registry: o.commands},
		Keybinds:    &ScopedKeybinds{identity: identity, registry: o.keybinds},
	}, nil
}

// releaseCapabilities releases the capability-surface resources a record
// holds: its named registrations and its configuration handle.
func (o *Orchestrator) releaseCapabilities(record *ExtensionRecord) {
	identity := record.Identity()
	o.commands.removeScope(identity)
	o.keybinds.removeScope(identity)

	if record.Host != nil && record.Host.Config != nil {
		if err := record.Host.Config.Close(); err != nil {
			o.logger.Warn("Failed to dispose configuration handle",
				"identity", identity,
				"error", err)
		}
	}
	record.Host = nil
}

// Signal dispatch. Each method fans out in the resolved load order to
// every record currently Loaded; a missing handler is silently skipped and
// a failing handler demotes only its own record.

// HostReady notifies extensions that the host finished its own startup.
func (o *Orchestrator) HostReady() {
	o.dispatch(SignalHostReady, func(instance Extension) (func() error, bool) {
		handler, ok := instance.(HostReadyHandler)
		if !ok {
			return nil, false
		}
		return handler.OnHostReady, true
	})
}

// ContentReady notifies extensions that host content registration is done.
func (o *Orchestrator) ContentReady() {
	o.dispatch(SignalContentReady, func(instance Extension) (func() error, bool) {
		handler, ok := instance.(ContentReadyHandler)
		if !ok {
			return nil, false
		}
		return handler.OnContentReady, true
	})
}

// FirstTick notifies extensions of the host's first update tick.
func (o *Orchestrator) FirstTick() {
	o.dispatch(SignalFirstTick, func(instance Extension) (func() error, bool) {
		handler, ok := instance.(FirstTickHandler)
		if !ok {
			return nil, false
		}
		return handler.OnFirstTick, true
	})
}

// DomainEntered notifies extensions that a domain scope was entered.
func (o *Orchestrator) DomainEntered() {
	o.dispatch(SignalDomainEntered, func(instance Extension) (func() error, bool) {
		handler, ok := instance.(DomainEnterHandler)
		if !ok {
			return nil, false
		}
		return handler.OnDomainEntered, true
	})
}

// DomainExited notifies extensions that a domain scope was exited.
func (o *Orchestrator) DomainExited() {
	o.dispatch(SignalDomainExited, func(instance Extension) (func() error, bool) {
		handler, ok := instance.(DomainExitHandler)
		if !ok {
			return nil, false
		}
		return handler.OnDomainExited, true
	})
}

// dispatch fans a signal out to every Loaded record in load order. A
// record demoted by an earlier signal in the same pass no longer receives
// this one; records already notified are not retroactively undone when a
// later record fails.
func (o *Orchestrator) dispatch(signal string, pick func(Extension) (func() error, bool)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, record := range o.records {
		if record.State != StateLoaded {
			continue
		}

		handler, ok := pick(record.Instance)
		if !ok {
			continue
		}

		if !guard(o.logger, record, signal+" handler", handler) {
			o.releaseCapabilities(record)
			continue
		}
		o.logger.Debug("Signal delivered", "signal", signal, "identity", record.Identity())
	}
}

// Shutdown tears the session down: Loaded records are unloaded in reverse
// resolved order (dependents before their dependencies), each teardown
// handler runs through the guard, capability-surface resources are
// released, and the record table is cleared. The orchestrator is then
// ready for a fresh Run.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.sessionActive {
		return
	}

	for i := len(o.records) - 1; i >= 0; i-- {
		record := o.records[i]
		if record.State != StateLoaded {
			continue
		}

		if handler, ok := record.Instance.(ShutdownHandler); ok {
			guard(o.logger, record, SignalShutdown+" handler", handler.OnShutdown)
		}
		o.releaseCapabilities(record)

		if record.State == StateLoaded {
			record.State = StateUnloaded
			record.Instance = nil
			o.logger.Debug("Extension unloaded", "identity", record.Identity())
		}
	}

	o.logger.Info("Orchestration session ended",
		"session_id", o.sessionID,
		"extensions", len(o.records))

	o.records = nil
	o.byIdentity = make(map[string]*ExtensionRecord)
	o.loadableCount = 0
	o.sessionID = ""
	o.sessionActive = false
}

// Close shuts the orchestrator down permanently: the active session (if
// any) is torn down and the policy watcher is stopped.
func (o *Orchestrator) Close() error {
	o.Shutdown()
	if o.policy != nil {
		return o.policy.Stop()
	}
	return nil
}

// Diagnostics surface.

// Records returns a status snapshot for every record in the current
// session, in resolved order with blocked records at the end.
func (o *Orchestrator) Records() []ExtensionStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	statuses := make([]ExtensionStatus, 0, len(o.records))
	for _, record := range o.records {
		statuses = append(statuses, record.Status())
	}
	return statuses
}

// Record returns the status snapshot for one identity.
func (o *Orchestrator) Record(identity string) (ExtensionStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	record, ok := o.byIdentity[identity]
	if !ok {
		return ExtensionStatus{}, false
	}
	return record.Status(), true
}

// Session summarizes the current session for diagnostics.
func (o *Orchestrator) Session() SessionInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()

	byState := make(map[string]int)
	for _, record := range o.records {
		byState[record.State.String()]++
	}

	return SessionInfo{
		SessionID:  o.sessionID,
		StartedAt:  o.sessionStart,
		Extensions: len(o.records),
		ByState:    byState,
	}
}

// countState counts records in a given state. Callers hold the lock.
func (o *Orchestrator) countState(state ExtensionState) int {
	count := 0
	for _, record := range o.records {
		if record.State == state {
			count++
		}
	}
	return count
}
