// capability.go: Per-extension capability surface
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// HostContext is the capability surface handed to each extension at
// activation. Every handle on it is namespaced by the extension's identity
// so no two extensions can observe or collide with each other's
// registrations, and each handle is safe for concurrent use by
// extension-owned goroutines.
type HostContext struct {
	// Identity of the extension this surface belongs to.
	Identity string

	// PackageDir is the extension's own package directory.
	PackageDir string

	// HostVersion is the running host's version string.
	HostVersion string

	// Logger is pre-scoped with the extension identity.
	Logger Logger

	// Config is the extension's scoped configuration accessor.
	Config *ConfigStore

	// Commands is the extension's scoped command registration API.
	Commands *ScopedCommands

	// Keybinds is the extension's scoped keybind registration API.
	Keybinds *ScopedKeybinds
}

// CommandHandler executes a named command with its arguments.
type CommandHandler func(args []string) error

// KeybindHandler reacts to a bound key chord.
type KeybindHandler func() error

// CommandRegistry is the host-wide named command table. Registrations are
// namespaced "identity:name"; the registry is shared across extensions but
// collisions are impossible by construction.
type CommandRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

// NewCommandRegistry creates an empty command registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{handlers: make(map[string]CommandHandler)}
}

func (c *CommandRegistry) register(scoped string, handler CommandHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[scoped]; exists {
		return NewRegistrationConflictError("command", scoped)
	}
	c.handlers[scoped] = handler
	return nil
}

// Invoke runs a registered command by its fully-scoped name.
func (c *CommandRegistry) Invoke(scoped string, args []string) error {
	c.mu.RLock()
	handler, ok := c.handlers[scoped]
	c.mu.RUnlock()
	if !ok {
		return NewRegistrationConflictError("command", scoped).
			WithUserMessage("No command registered under this name")
	}
	return handler(args)
}

// Names returns all registered command names, sorted.
func (c *CommandRegistry) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// removeScope drops every registration belonging to an identity.
func (c *CommandRegistry) removeScope(identity string) {
	prefix := identity + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.handlers {
		if strings.HasPrefix(name, prefix) {
			delete(c.handlers, name)
		}
	}
}

// KeybindRegistry is the host-wide keybind table, namespaced like the
// command registry.
type KeybindRegistry struct {
	mu    sync.RWMutex
	binds map[string]keybind
}

type keybind struct {
	chord   string
	handler KeybindHandler
}

// NewKeybindRegistry creates an empty keybind registry.
func NewKeybindRegistry() *KeybindRegistry {
	return &KeybindRegistry{binds: make(map[string]keybind)}
}

func (k *KeybindRegistry) register(scoped, chord string, handler KeybindHandler) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.binds[scoped]; exists {
		return NewRegistrationConflictError("keybind", scoped)
	}
	k.binds[scoped] = keybind{chord: chord, handler: handler}
	return nil
}

// Trigger fires a registered keybind by its fully-scoped name.
func (k *KeybindRegistry) Trigger(scoped string) error {
	k.mu.RLock()
	bind, ok := k.binds[scoped]
	k.mu.RUnlock()
	if !ok {
		return NewRegistrationConflictError("keybind", scoped).
			WithUserMessage("No keybind registered under this name")
	}
	return bind.handler()
}

// Chords returns scoped name -> chord for all registrations.
func (k *KeybindRegistry) Chords() map[string]string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	chords := make(map[string]string, len(k.binds))
	for name, bind := range k.binds {
		chords[name] = bind.chord
	}
	return chords
}

func (k *KeybindRegistry) removeScope(identity string) {
	prefix := identity + ":"
	k.mu.Lock()
	defer k.mu.Unlock()
	for name := range k.binds {
		if strings.HasPrefix(name, prefix) {
			delete(k.binds, name)
		}
	}
}

// ScopedCommands is one extension's view of the command registry.
type ScopedCommands struct {
	identity string
	registry *CommandRegistry
}

// Register registers a command under the extension's namespace.
func (s *ScopedCommands) Register(name string, handler CommandHandler) error {
	return s.registry.register(s.identity+":"+name, handler)
}

// ScopedKeybinds is one extension's view of the keybind registry.
type ScopedKeybinds struct {
	identity string
	registry *KeybindRegistry
}

// Register registers a keybind under the extension's namespace.
func (s *ScopedKeybinds) Register(name, chord string, handler KeybindHandler) error {
	return s.registry.register(s.identity+":"+name, chord, handler)
}

// ConfigStore is a per-extension scoped configuration accessor backed by a
// YAML file under the orchestrator's config store directory. Each
// extension sees only its own namespace; Close flushes pending writes and
// is invoked by the orchestrator during teardown.
type ConfigStore struct {
	identity string
	path     string

	mu     sync.RWMutex
	values map[string]any
	dirty  bool
}

// newConfigStore opens (or lazily creates) the store for an identity.
// A missing file is an empty store, not an error.
func newConfigStore(storeDir, identity string) (*ConfigStore, error) {
	path := filepath.Join(storeDir, identity+".yaml")
	store := &ConfigStore{
		identity: identity,
		path:     path,
		values:   make(map[string]any),
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is derived from a validated identity
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, NewConfigStoreError(identity, "read failed", err)
	}

	if err := yaml.Unmarshal(data, &store.values); err != nil {
		return nil, NewConfigStoreError(identity, "parse failed", err)
	}
	if store.values == nil {
		store.values = make(map[string]any)
	}
	return store, nil
}

// Get returns the value stored under key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

// GetString returns the string value stored under key, or the fallback.
func (s *ConfigStore) GetString(key, fallback string) string {
	if value, ok := s.Get(key); ok {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return fallback
}

// Set stores a value under key. The write is buffered until Flush or Close.
func (s *ConfigStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.dirty = true
}

// Delete removes a key.
func (s *ConfigStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Keys returns all stored keys, sorted.
func (s *ConfigStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Flush writes buffered changes to disk.
func (s *ConfigStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	data, err := yaml.Marshal(s.values)
	if err != nil {
		return NewConfigStoreError(s.identity, "marshal failed", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return NewConfigStoreError(s.identity, "store directory creation failed", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return NewConfigStoreError(s.identity, "write failed", err)
	}

	s.dirty = false
	return nil
}

// Close implements the disposable contract: it flushes pending writes.
// Safe to call multiple times.
func (s *ConfigStore) Close() error {
	return s.Flush()
}
