// guard.go: Fault isolation around extension-owned calls
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"fmt"
	"runtime"
)

// guard executes an extension-owned call with fault isolation.
//
// Any error return or panic from the call downgrades the record to
// StateErrored with "<actionName> failed: <message>" and is logged; control
// always returns to the caller. The guarded region is exactly fn: the
// orchestrator's own bookkeeping runs outside the guard so orchestrator
// bugs are never silently attributed to an extension.
//
// Returns true when the call completed cleanly.
func guard(logger Logger, record *ExtensionRecord, actionName string, fn func() error) bool {
	err, panicked, stack := runGuarded(fn)
	if err == nil {
		return true
	}

	record.State = StateErrored
	record.ErrorMessage = fmt.Sprintf("%s failed: %v", actionName, err)
	record.Instance = nil

	if panicked {
		logger.Error("Extension call panicked",
			"extension", record.Identity(),
			"action", actionName,
			"panic", err,
			"stack", stack)
	} else {
		logger.Error("Extension call failed",
			"extension", record.Identity(),
			"action", actionName,
			"error", err)
	}
	return false
}

// runGuarded invokes fn, converting a panic into an error plus the captured
// stack trace.
func runGuarded(fn func() error) (err error, panicked bool, stack string) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)
			stack = string(buf[:n])
			panicked = true
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()

	err = fn()
	return
}

// withStackRecover returns a panic recovery function that logs panic
// details including the full stack trace. Used around goroutine callbacks
// such as policy watcher notifications.
//
// The returned function should be called with defer.
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)

			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(buf[:n]))
		}
	}
}
