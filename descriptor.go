// descriptor.go: Extension descriptor model, parsing and validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor describes one extension package: identity, version,
// dependencies, capability requirements and the entry-point reference.
//
// Descriptors are immutable once created by discovery and are never
// mutated afterwards; all mutable per-extension state lives in the
// ExtensionRecord that wraps the descriptor.
//
// Example JSON descriptor:
//
//	{
//	  "identity": "map-overlay",
//	  "displayName": "Map Overlay",
//	  "version": "1.2.0",
//	  "author": "tools-team",
//	  "dependencies": [
//	    {"identity": "core-ui", "versionConstraint": ">=1.0.0"}
//	  ],
//	  "entryPoint": "map-overlay.ext",
//	  "minHostVersion": ">=2.3.0",
//	  "capabilities": {
//	    "configKeys": ["overlay.opacity"],
//	    "hostHooks": ["render-late"]
//	  }
//	}
type Descriptor struct {
	Identity     string          `json:"identity" yaml:"identity"`
	DisplayName  string          `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Version      string          `json:"version" yaml:"version"`
	Author       string          `json:"author,omitempty" yaml:"author,omitempty"`
	Dependencies []DependencyRef `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	EntryPoint   string          `json:"entryPoint" yaml:"entryPoint"`

	// MinHostVersion is an optional constraint evaluated against the running
	// host version. A mismatch produces a non-fatal compatibility warning.
	MinHostVersion string `json:"minHostVersion,omitempty" yaml:"minHostVersion,omitempty"`

	// Capabilities is the optional capability-declaration block. The
	// orchestrator carries it opaquely; only the capability surface
	// collaborators interpret it.
	Capabilities *CapabilityBlock `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`

	// Discovery metadata, filled in by the discovery engine.
	PackageDir     string `json:"packageDir,omitempty" yaml:"packageDir,omitempty"`
	DescriptorPath string `json:"descriptorPath,omitempty" yaml:"descriptorPath,omitempty"`
	Synthesized    bool   `json:"synthesized,omitempty" yaml:"synthesized,omitempty"`
}

// DependencyRef names one dependency of an extension, with an optional
// version constraint over the dependency's declared version.
type DependencyRef struct {
	Identity          string `json:"identity" yaml:"identity"`
	VersionConstraint string `json:"versionConstraint,omitempty" yaml:"versionConstraint,omitempty"`
}

// CapabilityBlock declares the host capabilities an extension wants.
type CapabilityBlock struct {
	ConfigKeys []string `json:"configKeys,omitempty" yaml:"configKeys,omitempty"`
	HostHooks  []string `json:"hostHooks,omitempty" yaml:"hostHooks,omitempty"`
}

// Display returns the human-readable name, falling back to the identity.
func (d *Descriptor) Display() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Identity
}

// DependencyIdentities returns the identities of all declared dependencies.
func (d *Descriptor) DependencyIdentities() []string {
	ids := make([]string, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		ids = append(ids, dep.Identity)
	}
	return ids
}

// ParseDescriptorFile reads and parses a descriptor file (JSON or YAML).
//
// JSON is tried first, then YAML, mirroring how manifest files are handled
// elsewhere in the AGILira libraries. The returned descriptor has not been
// validated; callers run ValidateDescriptor before trusting it.
func ParseDescriptorFile(path string) (*Descriptor, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path comes from the controlled package root walk
	if err != nil {
		return nil, NewMalformedDescriptorError(cleanPath, err)
	}

	var descriptor Descriptor
	if jsonErr := json.Unmarshal(data, &descriptor); jsonErr != nil {
		if yamlErr := yaml.Unmarshal(data, &descriptor); yamlErr != nil {
			return nil, NewMalformedDescriptorError(cleanPath, yamlErr)
		}
	}

	descriptor.DescriptorPath = cleanPath
	return &descriptor, nil
}

// SynthesizeDescriptor builds a minimal default descriptor for a package
// directory that contains a loadable binary but no descriptor file. The
// folder name becomes the identity and the first binary found becomes the
// entry point.
func SynthesizeDescriptor(packageDir, binaryPath string) *Descriptor {
	identity := filepath.Base(packageDir)
	return &Descriptor{
		Identity:    identity,
		DisplayName: identity,
		Version:     "0.0.0",
		EntryPoint:  binaryPath,
		PackageDir:  packageDir,
		Synthesized: true,
	}
}

// ValidateDescriptor performs structural validation on a parsed descriptor.
//
// Every violation is collected and returned; discovery reports them all and
// skips the directory rather than aborting the session.
func ValidateDescriptor(d *Descriptor) []error {
	var validationErrors []error

	if d.Identity == "" {
		validationErrors = append(validationErrors, NewMissingIdentityError(d.DescriptorPath))
	} else if err := validateIdentity(d.Identity); err != nil {
		validationErrors = append(validationErrors, err)
	}

	if d.Version == "" {
		validationErrors = append(validationErrors, NewMalformedVersionError(""))
	} else if _, err := ParseVersion(d.Version); err != nil {
		validationErrors = append(validationErrors, err)
	}

	if d.EntryPoint == "" {
		validationErrors = append(validationErrors, NewMissingEntryPointError(d.Identity))
	}

	for _, dep := range d.Dependencies {
		if dep.Identity == "" {
			validationErrors = append(validationErrors,
				NewInvalidIdentityError("", "dependency identity is empty"))
		}
	}

	return validationErrors
}

// validateIdentity rejects identities that could be abused as path or shell
// fragments. Identities end up in file paths, registry scopes and log
// lines, so the same checks applied to plugin names in go-plugins apply
// here.
func validateIdentity(identity string) error {
	if strings.Contains(identity, "..") {
		return NewInvalidIdentityError(identity, "path traversal sequence")
	}
	if strings.ContainsAny(identity, "/\\") {
		return NewInvalidIdentityError(identity, "path separator characters")
	}
	for _, r := range identity {
		if r < 32 || r == 127 {
			return NewInvalidIdentityError(identity, "control character")
		}
	}
	dangerous := []string{"~", "|", "&", ";", "$", "`", "(", ")", "[", "]", "{", "}", "<", ">", "\x00"}
	for _, pattern := range dangerous {
		if strings.Contains(identity, pattern) {
			return NewInvalidIdentityError(identity, "dangerous character "+pattern)
		}
	}
	return nil
}
