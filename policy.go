// policy.go: Activation policy layer with Argus-watched policy file
//
// The Disabled extension state is only ever entered through this explicit
// policy layer; automatic processing never assigns it. Policy changes
// detected at runtime apply to the next session; there is no in-session
// retry, since a failed or disabled extension's cause does not change
// without user intervention.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// Policy modes.
const (
	// PolicyModeDeny disables the listed identities; everything else runs.
	PolicyModeDeny = "deny"
	// PolicyModeAllow runs only the listed identities; everything else is
	// disabled.
	PolicyModeAllow = "allow"
)

// ActivationPolicy is an explicit allow/deny list over extension
// identities, evaluated by the orchestrator before activation is
// attempted.
type ActivationPolicy struct {
	Mode       string   `json:"mode" yaml:"mode"`
	Extensions []string `json:"extensions" yaml:"extensions"`
}

// Disabled reports whether the policy turns the given identity off.
func (p *ActivationPolicy) Disabled(identity string) bool {
	if p == nil {
		return false
	}

	listed := false
	for _, entry := range p.Extensions {
		if entry == identity {
			listed = true
			break
		}
	}

	if p.Mode == PolicyModeAllow {
		return !listed
	}
	return listed
}

// LoadActivationPolicy reads and parses a policy file (JSON or YAML).
func LoadActivationPolicy(path string) (*ActivationPolicy, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - path comes from orchestrator configuration
	if err != nil {
		return nil, NewPolicyParseError(cleanPath, err)
	}

	var policy ActivationPolicy
	if jsonErr := json.Unmarshal(data, &policy); jsonErr != nil {
		if yamlErr := yaml.Unmarshal(data, &policy); yamlErr != nil {
			return nil, NewPolicyParseError(cleanPath, yamlErr)
		}
	}

	if policy.Mode == "" {
		policy.Mode = PolicyModeDeny
	}
	if policy.Mode != PolicyModeDeny && policy.Mode != PolicyModeAllow {
		return nil, NewPolicyParseError(cleanPath, NewInvalidConfigError("unknown policy mode "+policy.Mode, nil))
	}

	return &policy, nil
}

// PolicyWatcher keeps an ActivationPolicy current by watching its file
// with Argus. The orchestrator reads the current policy once at the start
// of each session; mid-session file changes only affect later sessions.
type PolicyWatcher struct {
	path         string
	pollInterval time.Duration
	logger       Logger

	watcher *argus.Watcher
	running atomic.Bool

	mu      sync.RWMutex
	current *ActivationPolicy
}

// NewPolicyWatcher creates a watcher for the given policy file.
func NewPolicyWatcher(path string, pollInterval time.Duration, logger Logger) *PolicyWatcher {
	if pollInterval <= 0 {
		pollInterval = DefaultPolicyPollInterval
	}
	return &PolicyWatcher{
		path:         path,
		pollInterval: pollInterval,
		logger:       NewLogger(logger),
	}
}

// Start loads the initial policy and begins watching for changes.
//
// A missing policy file at startup is not fatal: the watcher starts with
// an empty deny-list policy and picks the file up once it appears.
func (pw *PolicyWatcher) Start() error {
	if !pw.running.CompareAndSwap(false, true) {
		return NewPolicyWatcherError("policy watcher is already running", nil)
	}

	policy, err := LoadActivationPolicy(pw.path)
	if err != nil {
		if os.IsNotExist(argusRootCause(err)) {
			pw.logger.Warn("Policy file not found, starting with empty policy", "path", pw.path)
			policy = &ActivationPolicy{Mode: PolicyModeDeny}
		} else {
			pw.running.Store(false)
			return err
		}
	}
	pw.setCurrent(policy)

	watcher := argus.New(argus.Config{
		PollInterval:         pw.pollInterval,
		MaxWatchedFiles:      1,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filePath string) {
			pw.logger.Error("Policy file watching error", "error", err, "file", filePath)
		},
	})

	if err := watcher.Watch(pw.path, pw.handlePolicyChange); err != nil {
		pw.running.Store(false)
		return NewPolicyWatcherError("failed to watch policy file", err)
	}
	if err := watcher.Start(); err != nil {
		pw.running.Store(false)
		return NewPolicyWatcherError("failed to start policy watcher", err)
	}

	pw.watcher = watcher
	pw.logger.Info("Activation policy watcher started",
		"path", pw.path,
		"poll_interval", pw.pollInterval,
		"mode", policy.Mode,
		"entries", len(policy.Extensions))
	return nil
}

// Stop stops the watcher. The last loaded policy stays current.
func (pw *PolicyWatcher) Stop() error {
	if !pw.running.CompareAndSwap(true, false) {
		return nil
	}
	if pw.watcher != nil {
		if err := pw.watcher.Stop(); err != nil {
			return NewPolicyWatcherError("failed to stop policy watcher", err)
		}
		pw.watcher = nil
	}
	pw.logger.Info("Activation policy watcher stopped", "path", pw.path)
	return nil
}

// Current returns the most recently loaded policy, or nil when none has
// ever loaded.
func (pw *PolicyWatcher) Current() *ActivationPolicy {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.current
}

func (pw *PolicyWatcher) setCurrent(policy *ActivationPolicy) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.current = policy
}

// handlePolicyChange processes policy file changes from Argus.
func (pw *PolicyWatcher) handlePolicyChange(event argus.ChangeEvent) {
	defer withStackRecover(pw.logger)()

	if event.IsDelete {
		pw.logger.Warn("Policy file deleted, keeping last loaded policy", "path", event.Path)
		return
	}

	policy, err := LoadActivationPolicy(event.Path)
	if err != nil {
		pw.logger.Error("Failed to reload activation policy, keeping last loaded policy",
			"path", event.Path,
			"error", err)
		return
	}

	pw.setCurrent(policy)
	pw.logger.Info("Activation policy reloaded; applies to the next session",
		"path", event.Path,
		"mode", policy.Mode,
		"entries", len(policy.Extensions))
}

// argusRootCause unwraps to the innermost cause for os.IsNotExist checks.
func argusRootCause(err error) error {
	type causer interface{ Unwrap() error }
	for err != nil {
		c, ok := err.(causer)
		if !ok || c.Unwrap() == nil {
			return err
		}
		err = c.Unwrap()
	}
	return err
}
