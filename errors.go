// errors.go: structured error definitions for the go-extensions system
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"github.com/agilira/go-errors"
)

// Error codes for the go-extensions system
const (
	// Descriptor and discovery errors (1000-1099)
	ErrCodeMissingIdentity     = "EXT_1001"
	ErrCodeInvalidIdentity     = "EXT_1002"
	ErrCodeMalformedVersion    = "EXT_1003"
	ErrCodeMalformedDescriptor = "EXT_1004"
	ErrCodeDuplicateIdentity   = "EXT_1005"
	ErrCodeDiscoveryError      = "EXT_1006"
	ErrCodeRootNotFound        = "EXT_1007"
	ErrCodeMissingEntryPoint   = "EXT_1008"

	// Version constraint errors (1100-1199)
	ErrCodeMalformedConstraint = "EXT_1101"

	// Dependency resolution errors (1200-1299)
	ErrCodeMissingDependency  = "EXT_1201"
	ErrCodeCircularDependency = "EXT_1202"

	// Activation errors (1300-1399)
	ErrCodeEntryPointNotFound = "EXT_1301"
	ErrCodeNoImplementation   = "EXT_1302"
	ErrCodeActivationFailed   = "EXT_1303"
	ErrCodeSessionActive      = "EXT_1304"
	ErrCodeCompatibilityIssue = "EXT_1305"

	// Capability surface errors (1500-1599)
	ErrCodeRegistrationConflict = "EXT_1501"
	ErrCodeConfigStoreError     = "EXT_1502"

	// Policy and configuration errors (1600-1699)
	ErrCodePolicyParseError   = "EXT_1601"
	ErrCodePolicyWatcherError = "EXT_1602"
	ErrCodeInvalidConfig      = "EXT_1603"
)

// Descriptor and discovery error constructors

func NewMissingIdentityError(path string) *errors.Error {
	return errors.New(ErrCodeMissingIdentity, "Missing extension identity").
		WithUserMessage("Extension identity is required and cannot be empty").
		WithContext("descriptor_path", path).
		WithSeverity("error")
}

func NewInvalidIdentityError(identity, reason string) *errors.Error {
	return errors.New(ErrCodeInvalidIdentity, "Invalid extension identity: "+reason).
		WithUserMessage("Extension identity contains characters that are not allowed").
		WithContext("identity", identity).
		WithSeverity("error")
}

func NewMalformedVersionError(version string) *errors.Error {
	return errors.New(ErrCodeMalformedVersion, "Malformed version").
		WithUserMessage("Version must follow numeric major.minor.patch form").
		WithContext("version", version).
		WithSeverity("error")
}

func NewMalformedDescriptorError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeMalformedDescriptor, "Malformed descriptor").
		WithUserMessage("Failed to parse descriptor as JSON or YAML").
		WithContext("descriptor_path", path).
		WithSeverity("error")
}

func NewDuplicateIdentityError(identity, firstDir, duplicateDir string) *errors.Error {
	return errors.New(ErrCodeDuplicateIdentity, "Duplicate extension identity").
		WithUserMessage("Extension identities must be unique across the package root; the first registered wins").
		WithContext("identity", identity).
		WithContext("first_directory", firstDir).
		WithContext("duplicate_directory", duplicateDir).
		WithSeverity("warning")
}

func NewDiscoveryError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeDiscoveryError, "Discovery error: "+message).
		WithUserMessage("Extension discovery failed").
		WithSeverity("error")
}

func NewRootNotFoundError(root string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeRootNotFound, "Package root not found").
		WithUserMessage("The extension package root does not exist or is not readable").
		WithContext("root", root).
		WithSeverity("error")
}

func NewMissingEntryPointError(identity string) *errors.Error {
	return errors.New(ErrCodeMissingEntryPoint, "Missing entry point").
		WithUserMessage("Descriptor must declare an entry point locator").
		WithContext("identity", identity).
		WithSeverity("error")
}

// Version constraint error constructors

func NewMalformedConstraintError(expr string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeMalformedConstraint, "Malformed version constraint").
		WithUserMessage("The version constraint expression could not be parsed and is treated as unconstrained").
		WithContext("constraint", expr).
		WithSeverity("warning")
}

// Dependency resolution error constructors

func NewMissingDependencyError(identity string, missing []string) *errors.Error {
	return errors.New(ErrCodeMissingDependency, "Missing dependency").
		WithUserMessage("The extension depends on extensions that were not discovered").
		WithContext("identity", identity).
		WithContext("missing", missing).
		WithSeverity("error")
}

func NewCircularDependencyError(identity string, cycle []string) *errors.Error {
	return errors.New(ErrCodeCircularDependency, "Circular dependency").
		WithUserMessage("The extension participates in a dependency cycle and cannot be loaded").
		WithContext("identity", identity).
		WithContext("cycle", cycle).
		WithSeverity("error")
}

// Activation error constructors

func NewEntryPointNotFoundError(identity, locator string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeEntryPointNotFound, "Entry point not found").
			WithUserMessage("The declared entry point could not be resolved").
			WithContext("identity", identity).
			WithContext("entry_point", locator).
			WithSeverity("error")
	}
	return errors.New(ErrCodeEntryPointNotFound, "Entry point not found").
		WithUserMessage("The declared entry point could not be resolved").
		WithContext("identity", identity).
		WithContext("entry_point", locator).
		WithSeverity("error")
}

func NewNoImplementationError(identity, locator string) *errors.Error {
	return errors.New(ErrCodeNoImplementation, "No extension implementation found").
		WithUserMessage("The entry point resolved to zero extension implementations").
		WithContext("identity", identity).
		WithContext("entry_point", locator).
		WithSeverity("error")
}

func NewActivationFailedError(identity string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeActivationFailed, "Activation failed").
		WithUserMessage("The extension failed during activation").
		WithContext("identity", identity).
		WithSeverity("error")
}

func NewSessionActiveError(phase string) *errors.Error {
	return errors.New(ErrCodeSessionActive, "Session already active").
		WithUserMessage("The orchestration pipeline runs exactly once per session; shut down before starting a new session").
		WithContext("phase", phase).
		WithSeverity("error")
}

func NewCompatibilityWarning(identity, constraint, hostVersion string) *errors.Error {
	return errors.New(ErrCodeCompatibilityIssue, "Host version compatibility mismatch").
		WithUserMessage("The extension declares a minimum host version the running host does not satisfy; it will still load").
		WithContext("identity", identity).
		WithContext("min_host_version", constraint).
		WithContext("host_version", hostVersion).
		WithSeverity("warning")
}

// Capability surface error constructors

func NewRegistrationConflictError(scope, name string) *errors.Error {
	return errors.New(ErrCodeRegistrationConflict, "Registration conflict").
		WithUserMessage("A registration with the same name already exists in this scope").
		WithContext("scope", scope).
		WithContext("name", name).
		WithSeverity("error")
}

func NewConfigStoreError(identity, message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigStoreError, "Config store error: "+message).
		WithUserMessage("Scoped configuration access failed").
		WithContext("identity", identity).
		WithSeverity("error")
}

// Policy and configuration error constructors

func NewPolicyParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodePolicyParseError, "Policy parse error").
		WithUserMessage("Failed to parse activation policy file").
		WithContext("policy_path", path).
		WithSeverity("error")
}

func NewPolicyWatcherError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodePolicyWatcherError, "Policy watcher error: "+message).
		WithUserMessage("Activation policy monitoring failed").
		WithSeverity("error")
}

func NewInvalidConfigError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInvalidConfig, "Invalid configuration: "+message).
		WithUserMessage("Orchestrator configuration validation failed").
		WithSeverity("error")
}
