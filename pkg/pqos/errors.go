// Copyright The NRI Plugins Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pqos

import "fmt"

var (
	// ErrInvalidArgument is returned for nil snapshots, zero capacity
	// buffers and enumerations outside their defined range.
	ErrInvalidArgument = fmt.Errorf("pqos: invalid argument")
	// ErrNotFound is returned by well-formed queries that match nothing.
	ErrNotFound = fmt.Errorf("pqos: not found")
	// ErrCapabilityAbsent is returned when the platform lacks a capability.
	// It is deliberately not an ErrNotFound.
	ErrCapabilityAbsent = fmt.Errorf("pqos: capability not supported")
	// ErrOverflow is returned when a caller-provided buffer is too small.
	ErrOverflow = fmt.Errorf("pqos: insufficient buffer capacity")
	// ErrInvalidSnapshot is returned when snapshot validation fails.
	ErrInvalidSnapshot = fmt.Errorf("pqos: invalid snapshot")
)

// invalidArgError returns an ErrInvalidArgument with some extra context.
func invalidArgError(format string, args ...interface{}) error {
	err := fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidArgument}, args...)...)
	if log.DebugEnabled() {
		log.Debug("rejected query: %v", err)
	}
	return err
}

// notFoundError returns an ErrNotFound with some extra context.
func notFoundError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}

// overflowError returns an ErrOverflow for the given buffer capacity.
func overflowError(what string, capacity int) error {
	return fmt.Errorf("%w: more than %d %s", ErrOverflow, capacity, what)
}

// snapshotError returns an ErrInvalidSnapshot with some extra context.
func snapshotError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidSnapshot}, args...)...)
}
