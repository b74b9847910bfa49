// discovery_test.go: Tests for filesystem extension discovery
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"os"
	"path/filepath"
	"testing"
)

func writePackage(t *testing.T, root, dir string, files map[string]string) string {
	t.Helper()
	packageDir := filepath.Join(root, dir)
	for name, content := range files {
		path := filepath.Join(packageDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("Fixture mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("Fixture write failed: %v", err)
		}
	}
	if len(files) == 0 {
		if err := os.MkdirAll(packageDir, 0o750); err != nil {
			t.Fatalf("Fixture mkdir failed: %v", err)
		}
	}
	return packageDir
}

func discoverIn(t *testing.T, root string) *DiscoveryReport {
	t.Helper()
	engine := NewDiscoveryEngine(Config{RootDir: root}.WithDefaults(), NewTestLogger())
	report, err := engine.Discover()
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	return report
}

func descriptorJSON(identity string) string {
	return `{"identity": "` + identity + `", "version": "1.0.0", "entryPoint": "` + identity + `.ext"}`
}

// TestDiscover_ValidPackages tests discovery of JSON and YAML descriptors.
func TestDiscover_ValidPackages(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "overlay", map[string]string{
		"extension.json": descriptorJSON("overlay"),
	})
	writePackage(t, root, "audio", map[string]string{
		"extension.yaml": "identity: audio\nversion: \"2.0.0\"\nentryPoint: audio.ext\n",
	})

	report := discoverIn(t, root)

	if len(report.Descriptors) != 2 {
		t.Fatalf("Found %d descriptors, expected 2", len(report.Descriptors))
	}
	// Child directories are visited in lexical order.
	if report.Descriptors[0].Identity != "audio" || report.Descriptors[1].Identity != "overlay" {
		t.Errorf("Discovery order = [%s %s], expected [audio overlay]",
			report.Descriptors[0].Identity, report.Descriptors[1].Identity)
	}
	if report.Descriptors[0].PackageDir != filepath.Join(root, "audio") {
		t.Errorf("PackageDir = %q", report.Descriptors[0].PackageDir)
	}
}

// TestDiscover_DescriptorInSubdirectory tests the subtree search fallback.
func TestDiscover_DescriptorInSubdirectory(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "nested", map[string]string{
		"meta/extension.json": descriptorJSON("nested"),
	})

	report := discoverIn(t, root)
	if len(report.Descriptors) != 1 || report.Descriptors[0].Identity != "nested" {
		t.Fatalf("Subtree descriptor not found: %+v", report.Descriptors)
	}
}

// TestDiscover_SynthesizedDescriptor tests the binary-only fallback.
func TestDiscover_SynthesizedDescriptor(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "barebones", map[string]string{
		"bin/barebones.ext": "binary-placeholder",
	})

	report := discoverIn(t, root)

	if len(report.Descriptors) != 1 {
		t.Fatalf("Found %d descriptors, expected 1", len(report.Descriptors))
	}
	d := report.Descriptors[0]
	if !d.Synthesized {
		t.Error("Descriptor must be marked synthesized")
	}
	if d.Identity != "barebones" {
		t.Errorf("Identity = %q, expected folder name", d.Identity)
	}
	if d.Version != "0.0.0" {
		t.Errorf("Version = %q, expected 0.0.0", d.Version)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("Expected one synthesis warning, got %v", report.Warnings)
	}
}

// TestDiscover_EmptyDirSkippedSilently tests that a directory with neither
// descriptor nor binary is not an extension package.
func TestDiscover_EmptyDirSkippedSilently(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "not-an-extension", map[string]string{
		"readme.txt": "nothing to load here",
	})

	report := discoverIn(t, root)
	if len(report.Descriptors) != 0 {
		t.Errorf("Expected no descriptors, got %+v", report.Descriptors)
	}
	if len(report.Warnings) != 0 || len(report.SkippedDirs) != 0 {
		t.Errorf("Silent skip must not warn: warnings=%v skipped=%v", report.Warnings, report.SkippedDirs)
	}
}

// TestDiscover_ReservedDirsExcluded tests the reserved exclusion list.
func TestDiscover_ReservedDirsExcluded(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, ".git", map[string]string{
		"extension.json": descriptorJSON("sneaky"),
	})
	writePackage(t, root, "_disabled", map[string]string{
		"extension.json": descriptorJSON("parked"),
	})
	// Case-insensitive match.
	writePackage(t, root, "NODE_MODULES", map[string]string{
		"extension.json": descriptorJSON("deps"),
	})
	writePackage(t, root, "real", map[string]string{
		"extension.json": descriptorJSON("real"),
	})

	report := discoverIn(t, root)
	if len(report.Descriptors) != 1 || report.Descriptors[0].Identity != "real" {
		t.Errorf("Expected only the real package, got %+v", report.Descriptors)
	}
}

// TestDiscover_MalformedDescriptorSkipsDirectory tests per-directory
// containment of parse failures.
func TestDiscover_MalformedDescriptorSkipsDirectory(t *testing.T) {
	root := t.TempDir()
	broken := writePackage(t, root, "broken", map[string]string{
		"extension.json": "{\tnot parseable: [",
	})
	writePackage(t, root, "healthy", map[string]string{
		"extension.json": descriptorJSON("healthy"),
	})

	report := discoverIn(t, root)

	if len(report.Descriptors) != 1 || report.Descriptors[0].Identity != "healthy" {
		t.Errorf("Healthy package must survive a broken sibling, got %+v", report.Descriptors)
	}
	if len(report.SkippedDirs[broken]) == 0 {
		t.Errorf("Broken directory must be recorded with its reason, got %v", report.SkippedDirs)
	}
}

// TestDiscover_ValidationFailureRecordsAllReasons tests that a descriptor
// failing several checks reports them all.
func TestDiscover_ValidationFailureRecordsAllReasons(t *testing.T) {
	root := t.TempDir()
	invalid := writePackage(t, root, "invalid", map[string]string{
		"extension.json": `{"identity": "", "version": "bogus", "entryPoint": ""}`,
	})

	report := discoverIn(t, root)
	if len(report.Descriptors) != 0 {
		t.Errorf("Invalid descriptor must not be accepted: %+v", report.Descriptors)
	}
	if len(report.SkippedDirs[invalid]) != 3 {
		t.Errorf("Expected 3 recorded violations, got %v", report.SkippedDirs[invalid])
	}
}

// TestDiscover_DuplicateIdentity tests first-wins duplicate handling.
func TestDiscover_DuplicateIdentity(t *testing.T) {
	root := t.TempDir()
	writePackage(t, root, "a-first", map[string]string{
		"extension.json": descriptorJSON("twin"),
	})
	writePackage(t, root, "b-second", map[string]string{
		"extension.json": descriptorJSON("twin"),
	})

	report := discoverIn(t, root)

	if len(report.Descriptors) != 1 {
		t.Fatalf("Expected one surviving twin, got %d", len(report.Descriptors))
	}
	if report.Descriptors[0].PackageDir != filepath.Join(root, "a-first") {
		t.Errorf("First discovered must win, got %q", report.Descriptors[0].PackageDir)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("Expected one duplicate warning, got %v", report.Warnings)
	}
}

// TestDiscover_MissingRootIsFatal tests the single fatal condition.
func TestDiscover_MissingRootIsFatal(t *testing.T) {
	engine := NewDiscoveryEngine(Config{RootDir: filepath.Join(t.TempDir(), "absent")}.WithDefaults(), NewTestLogger())
	if _, err := engine.Discover(); err == nil {
		t.Error("Missing root must abort discovery")
	}
}

// TestDiscover_FilesAtRootIgnored tests that stray files beside packages
// are not candidates.
func TestDiscover_FilesAtRootIgnored(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "extension.json"), []byte(descriptorJSON("stray")), 0o600); err != nil {
		t.Fatalf("Fixture write failed: %v", err)
	}

	report := discoverIn(t, root)
	if len(report.Descriptors) != 0 {
		t.Errorf("Root-level files must be ignored, got %+v", report.Descriptors)
	}
}
