// config.go: Orchestrator configuration with defaults and validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"time"
)

// Config configures one extension orchestrator.
//
// Example:
//
//	config := goextensions.Config{
//	    RootDir:     "/opt/host/extensions",
//	    HostVersion: "2.4.1",
//	    PolicyPath:  "/opt/host/extensions-policy.yaml",
//	}
//	orch, err := goextensions.NewOrchestrator(config, logger)
type Config struct {
	// RootDir is the package root: one immediate child directory per
	// extension package.
	RootDir string `json:"root_dir" yaml:"root_dir"`

	// HostVersion is the running host's version, evaluated against each
	// descriptor's minHostVersion constraint.
	HostVersion string `json:"host_version" yaml:"host_version"`

	// ReservedDirNames are child directory names that are never scanned.
	ReservedDirNames []string `json:"reserved_dir_names,omitempty" yaml:"reserved_dir_names,omitempty"`

	// DescriptorPatterns are the file name patterns recognized as
	// descriptors, in priority order.
	DescriptorPatterns []string `json:"descriptor_patterns,omitempty" yaml:"descriptor_patterns,omitempty"`

	// BinaryPatterns are the file name patterns recognized as loadable
	// binaries when synthesizing a default descriptor.
	BinaryPatterns []string `json:"binary_patterns,omitempty" yaml:"binary_patterns,omitempty"`

	// PolicyPath optionally points at an activation policy file. Empty
	// means no policy layer: nothing is ever Disabled.
	PolicyPath string `json:"policy_path,omitempty" yaml:"policy_path,omitempty"`

	// PolicyPollInterval is how often the policy watcher polls for
	// changes. Zero selects the default.
	PolicyPollInterval time.Duration `json:"policy_poll_interval,omitempty" yaml:"policy_poll_interval,omitempty"`

	// ConfigStoreDir is where per-extension scoped configuration files
	// live. Empty defaults to "<RootDir>/.config".
	ConfigStoreDir string `json:"config_store_dir,omitempty" yaml:"config_store_dir,omitempty"`
}

// DefaultReservedDirNames are directory names excluded from scanning in
// every deployment: version control litter, disabled staging areas and the
// scoped configuration directory itself.
var DefaultReservedDirNames = []string{".git", ".svn", ".config", "_disabled", "node_modules"}

// DefaultDescriptorPatterns are the descriptor file names recognized out
// of the box.
var DefaultDescriptorPatterns = []string{"extension.json", "extension.yaml", "extension.yml", "manifest.json", "manifest.yaml"}

// DefaultBinaryPatterns are the entry-point artifact names recognized when
// no descriptor is present.
var DefaultBinaryPatterns = []string{"*.ext", "*.so", "*.dll", "*.dylib"}

// DefaultPolicyPollInterval is the policy watcher poll cadence.
const DefaultPolicyPollInterval = 2 * time.Second

// WithDefaults returns a copy of the config with unset fields filled in.
func (c Config) WithDefaults() Config {
	if len(c.ReservedDirNames) == 0 {
		c.ReservedDirNames = DefaultReservedDirNames
	}
	if len(c.DescriptorPatterns) == 0 {
		c.DescriptorPatterns = DefaultDescriptorPatterns
	}
	if len(c.BinaryPatterns) == 0 {
		c.BinaryPatterns = DefaultBinaryPatterns
	}
	if c.PolicyPollInterval <= 0 {
		c.PolicyPollInterval = DefaultPolicyPollInterval
	}
	if c.ConfigStoreDir == "" && c.RootDir != "" {
		c.ConfigStoreDir = c.RootDir + "/.config"
	}
	return c
}

// Validate checks the configuration for structural problems.
func (c Config) Validate() error {
	if c.RootDir == "" {
		return NewInvalidConfigError("root_dir is required", nil)
	}
	if c.HostVersion != "" {
		if _, err := ParseVersion(c.HostVersion); err != nil {
			return NewInvalidConfigError("host_version is not a valid version", err)
		}
	}
	return nil
}
