// orchestrator_test.go: Tests for the extension lifecycle orchestrator
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal collects lifecycle events emitted by test extensions, in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) filtered(suffix string) []string {
	var matched []string
	for _, entry := range j.snapshot() {
		if strings.HasSuffix(entry, suffix) {
			matched = append(matched, entry)
		}
	}
	return matched
}

// recordingExtension implements every lifecycle handler and appends each
// call to the shared journal. Failure behavior is switchable per instance.
type recordingExtension struct {
	identity      string
	journal       *journal
	failInit      error
	panicInit     bool
	failHostReady error
	host          *HostContext
}

func (r *recordingExtension) log(event string) {
	if r.journal != nil {
		r.journal.add(r.identity + ":" + event)
	}
}

func (r *recordingExtension) Initialize(host *HostContext) error {
	r.host = host
	r.log("init")
	if r.panicInit {
		panic("deliberate init panic")
	}
	return r.failInit
}

func (r *recordingExtension) OnHostReady() error {
	r.log("host-ready")
	return r.failHostReady
}

func (r *recordingExtension) OnContentReady() error {
	r.log("content-ready")
	return nil
}

func (r *recordingExtension) OnFirstTick() error {
	r.log("first-tick")
	return nil
}

func (r *recordingExtension) OnDomainEntered() error {
	r.log("domain-entered")
	return nil
}

func (r *recordingExtension) OnDomainExited() error {
	r.log("domain-exited")
	return nil
}

func (r *recordingExtension) OnShutdown() error {
	r.log("shutdown")
	return nil
}

// descriptorJSONWithDeps builds a JSON descriptor fixture with dependencies.
func descriptorJSONWithDeps(identity string, deps ...string) string {
	var refs []string
	for _, dep := range deps {
		refs = append(refs, `{"identity": "`+dep+`"}`)
	}
	return `{"identity": "` + identity + `", "version": "1.0.0", "entryPoint": "` + identity +
		`.ext", "dependencies": [` + strings.Join(refs, ", ") + `]}`
}

// testHost wires a root directory of packages to recording extensions.
type testHost struct {
	orch    *Orchestrator
	journal *journal
	logger  *TestLogger
}

func newTestHost(t *testing.T, root string, identities ...string) *testHost {
	t.Helper()

	logger := NewTestLogger()
	orch, err := NewOrchestrator(Config{
		RootDir:        root,
		HostVersion:    "2.4.0",
		ConfigStoreDir: filepath.Join(t.TempDir(), "config"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })

	j := &journal{}
	for _, identity := range identities {
		identity := identity
		orch.EntryPoints().MustRegister(identity+".ext", func() Extension {
			return &recordingExtension{identity: identity, journal: j}
		})
	}
	return &testHost{orch: orch, journal: j, logger: logger}
}

func stateOf(t *testing.T, orch *Orchestrator, identity string) ExtensionState {
	t.Helper()
	status, ok := orch.Record(identity)
	require.True(t, ok, "no record for %s", identity)
	return status.State
}

// TestOrchestrator_RunLoadsDependencyFirst tests the core happy path: a
// dependent and its dependency both load, dependency first.
func TestOrchestrator_RunLoadsDependencyFirst(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "app", map[string]string{
		"extension.json": descriptorJSONWithDeps("app", "core"),
	})
	writePackage(t, root, "core", map[string]string{
		"extension.json": descriptorJSONWithDeps("core"),
	})

	host := newTestHost(t, root, "app", "core")
	require.NoError(t, host.orch.Run())

	assert.Equal(t, StateLoaded, stateOf(t, host.orch, "app"))
	assert.Equal(t, StateLoaded, stateOf(t, host.orch, "core"))
	assert.Equal(t, []string{"core:init", "app:init"}, host.journal.filtered(":init"))

	statuses := host.orch.Records()
	require.Len(t, statuses, 2)
	assert.Equal(t, "core", statuses[0].Identity, "load order must lead the diagnostics view")
	assert.Equal(t, "app", statuses[1].Identity)
	assert.False(t, statuses[0].ActivatedAt.IsZero())
}

// TestOrchestrator_MissingDependencyIsContained tests that an absent
// dependency parks only the dependent.
func TestOrchestrator_MissingDependencyIsContained(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "needy", map[string]string{
		"extension.json": descriptorJSONWithDeps("needy", "ghost"),
	})
	writePackage(t, root, "solo", map[string]string{
		"extension.json": descriptorJSONWithDeps("solo"),
	})

	host := newTestHost(t, root, "needy", "solo")
	require.NoError(t, host.orch.Run())

	assert.Equal(t, StateDependencyError, stateOf(t, host.orch, "needy"))
	assert.Equal(t, StateLoaded, stateOf(t, host.orch, "solo"))

	status, _ := host.orch.Record("needy")
	assert.Contains(t, status.ErrorMessage, "ghost")
	assert.Empty(t, host.journal.filtered("needy:init"), "blocked extension must never initialize")
}

// TestOrchestrator_CycleBlocksAllMembers tests that a dependency cycle
// parks every member with the full membership in the reason.
func TestOrchestrator_CycleBlocksAllMembers(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "ring-a", map[string]string{
		"extension.json": descriptorJSONWithDeps("ring-a", "ring-b"),
	})
	writePackage(t, root, "ring-b", map[string]string{
		"extension.json": descriptorJSONWithDeps("ring-b", "ring-a"),
	})
	writePackage(t, root, "bystander", map[string]string{
		"extension.json": descriptorJSONWithDeps("bystander"),
	})

	host := newTestHost(t, root, "ring-a", "ring-b", "bystander")
	require.NoError(t, host.orch.Run())

	assert.Equal(t, StateDependencyError, stateOf(t, host.orch, "ring-a"))
	assert.Equal(t, StateDependencyError, stateOf(t, host.orch, "ring-b"))
	assert.Equal(t, StateLoaded, stateOf(t, host.orch, "bystander"))

	status, _ := host.orch.Record("ring-a")
	assert.Contains(t, status.ErrorMessage, "ring-a")
	assert.Contains(t, status.ErrorMessage, "ring-b")
}

// TestOrchestrator_InitPanicIsolated tests that one panicking extension
// leaves its independent siblings running.
func TestOrchestrator_InitPanicIsolated(t *testing.T) {
	root := t.TempDir()
	for _, identity := range []string{"steady-one", "volatile", "steady-two"} {
		writePackage(t, root, identity, map[string]string{
			"extension.json": descriptorJSONWithDeps(identity),
		})
	}

	host := newTestHost(t, root, "steady-one", "steady-two")
	host.orch.EntryPoints().MustRegister("volatile.ext", func() Extension {
		return &recordingExtension{identity: "volatile", journal: host.journal, panicInit: true}
	})

	require.NoError(t, host.orch.Run())

	assert.Equal(t, StateErrored, stateOf(t, host.orch, "volatile"))
	assert.Equal(t, StateLoaded, stateOf(t, host.orch, "steady-one"))
	assert.Equal(t, StateLoaded, stateOf(t, host.orch, "steady-two"))

	status, _ := host.orch.Record("volatile")
	assert.Contains(t, status.ErrorMessage, "initialization failed")
	assert.Contains(t, status.ErrorMessage, "deliberate init panic")
}

// TestOrchestrator_InitErrorIsolated tests the returned-error flavor.
func TestOrchestrator_InitErrorIsolated(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "refusing", map[string]string{
		"extension.json": descriptorJSONWithDeps("refusing"),
	})
	writePackage(t, root, "fine", map[string]string{
		"extension.json": descriptorJSONWithDeps("fine"),
	})

	host := newTestHost(t, root, "fine")
	host.orch.EntryPoints().MustRegister("refusing.ext", func() Extension {
		return &recordingExtension{identity: "refusing", journal: host.journal, failInit: errors.New("no license")}
	})

	require.NoError(t, host.orch.Run())
	assert.Equal(t, StateErrored, stateOf(t, host.orch, "refusing"))
	assert.Equal(t, StateLoaded, stateOf(t, host.orch, "fine"))
}

// TestOrchestrator_SignalFanOutInLoadOrder tests signal delivery to every
// loaded extension in load order, exactly once.
func TestOrchestrator_SignalFanOutInLoadOrder(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "app", map[string]string{
		"extension.json": descriptorJSONWithDeps("app", "core"),
	})
	writePackage(t, root, "core", map[string]string{
		"extension.json": descriptorJSONWithDeps("core"),
	})

	host := newTestHost(t, root, "app", "core")
	require.NoError(t, host.orch.Run())

	host.orch.HostReady()
	assert.Equal(t, []string{"core:host-ready", "app:host-ready"}, host.journal.filtered(":host-ready"))

	host.orch.ContentReady()
	host.orch.FirstTick()
	host.orch.DomainEntered()
	host.orch.DomainExited()
	assert.Equal(t, []string{"core:content-ready", "app:content-ready"}, host.journal.filtered(":content-ready"))
	assert.Equal(t, []string{"core:first-tick", "app:first-tick"}, host.journal.filtered(":first-tick"))
	assert.Equal(t, []string{"core:domain-entered", "app:domain-entered"}, host.journal.filtered(":domain-entered"))
	assert.Equal(t, []string{"core:domain-exited", "app:domain-exited"}, host.journal.filtered(":domain-exited"))
}

// TestOrchestrator_SignalSkipsMissingHandler tests that an extension
// without a given handler is silently skipped.
func TestOrchestrator_SignalSkipsMissingHandler(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "mute", map[string]string{
		"extension.json": descriptorJSONWithDeps("mute"),
	})

	host := newTestHost(t, root)
	host.orch.EntryPoints().MustRegister("mute.ext", nullFactory)

	require.NoError(t, host.orch.Run())
	require.Equal(t, StateLoaded, stateOf(t, host.orch, "mute"))

	host.orch.HostReady()
	assert.Equal(t, StateLoaded, stateOf(t, host.orch, "mute"))
	assert.Zero(t, host.logger.CountLevel("ERROR"))
}

// TestOrchestrator_SignalFailureDemotesOnlyOffender tests mid-session
// demotion and exclusion from later signals.
func TestOrchestrator_SignalFailureDemotesOnlyOffender(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "flaky", map[string]string{
		"extension.json": descriptorJSONWithDeps("flaky"),
	})
	writePackage(t, root, "sturdy", map[string]string{
		"extension.json": descriptorJSONWithDeps("sturdy"),
	})

	host := newTestHost(t, root, "sturdy")
	host.orch.EntryPoints().MustRegister("flaky.ext", func() Extension {
		return &recordingExtension{identity: "flaky", journal: host.journal, failHostReady: errors.New("lost handle")}
	})
	require.NoError(t, host.orch.Run())

	host.orch.HostReady()
	assert.Equal(t, StateErrored, stateOf(t, host.orch, "flaky"))
	assert.Equal(t, StateLoaded, stateOf(t, host.orch, "sturdy"))

	host.orch.FirstTick()
	assert.Empty(t, host.journal.filtered("flaky:first-tick"), "demoted extension must not receive later signals")
	assert.Equal(t, []string{"sturdy:first-tick"}, host.journal.filtered(":first-tick"))
}

// TestOrchestrator_SecondRunRejected tests single-session enforcement and
// reuse after shutdown.
func TestOrchestrator_SecondRunRejected(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "only", map[string]string{
		"extension.json": descriptorJSONWithDeps("only"),
	})

	host := newTestHost(t, root, "only")
	require.NoError(t, host.orch.Run())
	require.Error(t, host.orch.Run(), "second Run during an active session must fail")

	host.orch.Shutdown()
	assert.NoError(t, host.orch.Run(), "Run after Shutdown starts a fresh session")
}

// TestOrchestrator_ShutdownReverseOrder tests reverse-load-order teardown
// and record table clearing.
func TestOrchestrator_ShutdownReverseOrder(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "app", map[string]string{
		"extension.json": descriptorJSONWithDeps("app", "core"),
	})
	writePackage(t, root, "core", map[string]string{
		"extension.json": descriptorJSONWithDeps("core"),
	})

	host := newTestHost(t, root, "app", "core")
	require.NoError(t, host.orch.Run())

	host.orch.Shutdown()

	assert.Equal(t, []string{"app:shutdown", "core:shutdown"}, host.journal.filtered(":shutdown"),
		"dependents must tear down before their dependencies")
	assert.Empty(t, host.orch.Records(), "record table must clear after shutdown")

	// Shutdown again is a no-op.
	host.orch.Shutdown()
	assert.Equal(t, 2, len(host.journal.filtered(":shutdown")))
}

// TestOrchestrator_PolicyDisablesExtension tests the deny-list path.
func TestOrchestrator_PolicyDisablesExtension(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "parked", map[string]string{
		"extension.json": descriptorJSONWithDeps("parked"),
	})
	writePackage(t, root, "active", map[string]string{
		"extension.json": descriptorJSONWithDeps("active"),
	})

	policyPath := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(policyPath,
		[]byte(`{"mode": "deny", "extensions": ["parked"]}`), 0o600))

	logger := NewTestLogger()
	orch, err := NewOrchestrator(Config{
		RootDir:        root,
		HostVersion:    "2.4.0",
		PolicyPath:     policyPath,
		ConfigStoreDir: filepath.Join(t.TempDir(), "config"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })

	j := &journal{}
	for _, identity := range []string{"parked", "active"} {
		identity := identity
		orch.EntryPoints().MustRegister(identity+".ext", func() Extension {
			return &recordingExtension{identity: identity, journal: j}
		})
	}

	require.NoError(t, orch.Run())

	assert.Equal(t, StateDisabled, stateOf(t, orch, "parked"))
	assert.Equal(t, StateLoaded, stateOf(t, orch, "active"))
	assert.Empty(t, j.filtered("parked:init"), "disabled extension must never initialize")

	orch.HostReady()
	assert.Empty(t, j.filtered("parked:host-ready"))
}

// TestOrchestrator_HostVersionMismatchWarnsAndLoads tests the non-fatal
// compatibility check.
func TestOrchestrator_HostVersionMismatchWarnsAndLoads(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "futuristic", map[string]string{
		"extension.json": `{"identity": "futuristic", "version": "1.0.0", "entryPoint": "futuristic.ext", "minHostVersion": ">=9.0.0"}`,
	})

	host := newTestHost(t, root, "futuristic")
	require.NoError(t, host.orch.Run())

	status, _ := host.orch.Record("futuristic")
	assert.Equal(t, StateLoaded, status.State, "version mismatch must not block loading")
	assert.NotEmpty(t, status.CompatWarning)
	assert.True(t, host.logger.CountLevel("WARN") > 0)
}

// TestOrchestrator_UnregisteredEntryPoint tests activation failure when no
// implementation exists behind the locator.
func TestOrchestrator_UnregisteredEntryPoint(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "orphan", map[string]string{
		"extension.json": descriptorJSONWithDeps("orphan"),
	})

	host := newTestHost(t, root) // nothing registered
	require.NoError(t, host.orch.Run())

	status, _ := host.orch.Record("orphan")
	assert.Equal(t, StateErrored, status.State)
	assert.NotEmpty(t, status.ErrorMessage)
}

// TestOrchestrator_CapabilitySurface tests command registration through
// the host context and its release at teardown.
func TestOrchestrator_CapabilitySurface(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "tooling", map[string]string{
		"extension.json": descriptorJSONWithDeps("tooling"),
	})

	host := newTestHost(t, root)
	invoked := false
	host.orch.EntryPoints().MustRegister("tooling.ext", func() Extension {
		return &funcExtension{initialize: func(hc *HostContext) error {
			hc.Config.Set("greeting", "hello")
			return hc.Commands.Register("wave", func(args []string) error {
				invoked = true
				return nil
			})
		}}
	})

	require.NoError(t, host.orch.Run())

	require.NoError(t, host.orch.Commands().Invoke("tooling:wave", nil))
	assert.True(t, invoked)

	host.orch.Shutdown()
	assert.Error(t, host.orch.Commands().Invoke("tooling:wave", nil),
		"commands must be released at teardown")
}

// funcExtension adapts a closure to the Extension interface.
type funcExtension struct {
	initialize func(*HostContext) error
}

func (f *funcExtension) Initialize(host *HostContext) error {
	return f.initialize(host)
}

// TestOrchestrator_SessionDiagnostics tests the session summary.
func TestOrchestrator_SessionDiagnostics(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "loaded-one", map[string]string{
		"extension.json": descriptorJSONWithDeps("loaded-one"),
	})
	writePackage(t, root, "blocked-one", map[string]string{
		"extension.json": descriptorJSONWithDeps("blocked-one", "ghost"),
	})

	host := newTestHost(t, root, "loaded-one", "blocked-one")
	require.NoError(t, host.orch.Run())

	session := host.orch.Session()
	assert.NotEmpty(t, session.SessionID)
	assert.False(t, session.StartedAt.IsZero())
	assert.Equal(t, 2, session.Extensions)
	assert.Equal(t, 1, session.ByState[StateLoaded.String()])
	assert.Equal(t, 1, session.ByState[StateDependencyError.String()])
}

// TestOrchestrator_MissingRootFailsRun tests the fatal discovery path.
func TestOrchestrator_MissingRootFailsRun(t *testing.T) {
	orch, err := NewOrchestrator(Config{
		RootDir:     filepath.Join(t.TempDir(), "never-created"),
		HostVersion: "1.0.0",
	}, NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })

	require.Error(t, orch.Run())
	assert.Empty(t, orch.Records(), "failed Run must not leave partial state")
}

// TestOrchestrator_InvalidConfigRejected tests constructor validation.
func TestOrchestrator_InvalidConfigRejected(t *testing.T) {
	if _, err := NewOrchestrator(Config{}, nil); err == nil {
		t.Error("Empty configuration must be rejected")
	}
	if _, err := NewOrchestrator(Config{RootDir: t.TempDir(), HostVersion: "not-a-version"}, nil); err == nil {
		t.Error("Malformed host version must be rejected")
	}
}
