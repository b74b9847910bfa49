// discovery.go: Extension package discovery over a filesystem root
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoveryEngine locates extension packages under a root directory.
//
// Each immediate child directory of the root that is not on the reserved
// exclusion list is one candidate package. The engine searches the
// directory root first and then its subtree for exactly one descriptor
// file; a directory carrying only a loadable binary gets a synthesized
// default descriptor and a warning; a directory with neither is silently
// skipped. Duplicate identities across directories are rejected with a
// warning; the first registered wins.
//
// Discovery order is stable: child directories are visited in lexical
// order, so repeated discovery over the same tree yields the same
// descriptor sequence.
type DiscoveryEngine struct {
	config Config
	logger Logger
}

// DiscoveryReport is the outcome of one discovery pass.
type DiscoveryReport struct {
	// Descriptors are the accepted descriptors in stable discovery order.
	Descriptors []*Descriptor

	// Warnings are the non-fatal findings: synthesized descriptors,
	// duplicate identities, malformed constraint notes.
	Warnings []error

	// SkippedDirs maps directory paths to the validation errors that
	// caused them to be skipped.
	SkippedDirs map[string][]error
}

// NewDiscoveryEngine creates a discovery engine for the given configuration.
func NewDiscoveryEngine(config Config, logger Logger) *DiscoveryEngine {
	return &DiscoveryEngine{
		config: config,
		logger: NewLogger(logger),
	}
}

// Discover performs one discovery pass over the configured package root.
//
// The only fatal condition is the root itself being missing or unreadable;
// everything below that is contained per-directory and reported in the
// returned DiscoveryReport.
func (d *DiscoveryEngine) Discover() (*DiscoveryReport, error) {
	entries, err := os.ReadDir(d.config.RootDir)
	if err != nil {
		return nil, NewRootNotFoundError(d.config.RootDir, err)
	}

	report := &DiscoveryReport{
		SkippedDirs: make(map[string][]error),
	}
	seen := make(map[string]string) // identity -> package dir of first registration

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if d.isReserved(name) {
			d.logger.Debug("Skipping reserved directory", "dir", name)
			continue
		}

		packageDir := filepath.Join(d.config.RootDir, name)
		descriptor := d.examinePackageDir(packageDir, report)
		if descriptor == nil {
			continue
		}

		if firstDir, dup := seen[descriptor.Identity]; dup {
			warning := NewDuplicateIdentityError(descriptor.Identity, firstDir, packageDir)
			report.Warnings = append(report.Warnings, warning)
			d.logger.Warn("Duplicate extension identity rejected",
				"identity", descriptor.Identity,
				"first", firstDir,
				"duplicate", packageDir)
			continue
		}

		seen[descriptor.Identity] = packageDir
		report.Descriptors = append(report.Descriptors, descriptor)
		d.logger.Debug("Discovered extension",
			"identity", descriptor.Identity,
			"version", descriptor.Version,
			"dir", packageDir)
	}

	d.logger.Info("Extension discovery completed",
		"root", d.config.RootDir,
		"found", len(report.Descriptors),
		"skipped", len(report.SkippedDirs),
		"warnings", len(report.Warnings))

	return report, nil
}

// examinePackageDir resolves one candidate package directory to a
// descriptor, or nil when the directory is skipped. Skips and their
// reasons are recorded on the report.
func (d *DiscoveryEngine) examinePackageDir(packageDir string, report *DiscoveryReport) *Descriptor {
	descriptorPath := d.locateDescriptor(packageDir)

	if descriptorPath == "" {
		binary := d.locateBinary(packageDir)
		if binary == "" {
			// Neither descriptor nor binary: not an extension package.
			return nil
		}
		descriptor := SynthesizeDescriptor(packageDir, binary)
		warning := NewDiscoveryError("no descriptor found, synthesized a default", nil).
			WithContext("package_dir", packageDir).
			WithContext("entry_point", binary)
		report.Warnings = append(report.Warnings, warning)
		d.logger.Warn("No descriptor found, synthesized a default",
			"dir", packageDir,
			"entry_point", binary)
		return descriptor
	}

	descriptor, err := ParseDescriptorFile(descriptorPath)
	if err != nil {
		report.SkippedDirs[packageDir] = []error{err}
		d.logger.Error("Failed to parse descriptor, skipping directory",
			"dir", packageDir,
			"error", err)
		return nil
	}

	if validationErrors := ValidateDescriptor(descriptor); len(validationErrors) > 0 {
		report.SkippedDirs[packageDir] = validationErrors
		for _, verr := range validationErrors {
			d.logger.Error("Descriptor validation failed",
				"dir", packageDir,
				"error", verr)
		}
		return nil
	}

	descriptor.PackageDir = packageDir
	return descriptor
}

// locateDescriptor finds the descriptor file for a package: the directory
// root is searched first, then the subtree in walk order.
func (d *DiscoveryEngine) locateDescriptor(packageDir string) string {
	for _, pattern := range d.config.DescriptorPatterns {
		matches, err := filepath.Glob(filepath.Join(packageDir, pattern))
		if err == nil && len(matches) > 0 {
			sort.Strings(matches)
			return matches[0]
		}
	}

	var found string
	_ = filepath.WalkDir(packageDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return fs.SkipAll
		}
		if entry.IsDir() {
			return nil
		}
		for _, pattern := range d.config.DescriptorPatterns {
			if matched, _ := filepath.Match(pattern, entry.Name()); matched {
				found = path
				return fs.SkipAll
			}
		}
		return nil
	})
	return found
}

// locateBinary finds the first loadable binary anywhere in the package
// subtree, in walk order.
func (d *DiscoveryEngine) locateBinary(packageDir string) string {
	var found string
	_ = filepath.WalkDir(packageDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return fs.SkipAll
		}
		if entry.IsDir() {
			return nil
		}
		for _, pattern := range d.config.BinaryPatterns {
			if matched, _ := filepath.Match(pattern, entry.Name()); matched {
				found = path
				return fs.SkipAll
			}
		}
		return nil
	})
	return found
}

// isReserved reports whether a child directory name is on the reserved
// exclusion list. Matching is case-insensitive since package roots travel
// between filesystems with different case rules.
func (d *DiscoveryEngine) isReserved(name string) bool {
	for _, reserved := range d.config.ReservedDirNames {
		if strings.EqualFold(name, reserved) {
			return true
		}
	}
	return false
}
