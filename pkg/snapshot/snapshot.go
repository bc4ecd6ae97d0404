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

// Package snapshot stores and loads system snapshots as YAML or JSON.
package snapshot

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"sigs.k8s.io/yaml"

	logger "github.com/containers/pqos-query/pkg/log"
	"github.com/containers/pqos-query/pkg/pqos"
)

var (
	log = logger.Get("snapshot")
)

// Snapshot is the CPU topology and resource control capabilities of a system.
type Snapshot struct {
	// CPU is the CPU topology of the system.
	CPU *pqos.CPUInfo `json:"cpu"`
	// Capabilities are the resource control capabilities of the system.
	Capabilities *pqos.Capabilities `json:"capabilities,omitempty"`
}

// Validate checks both parts of the snapshot.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", pqos.ErrInvalidSnapshot)
	}

	var result *multierror.Error
	if err := s.CPU.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if s.Capabilities != nil {
		if err := s.Capabilities.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Parse parses and validates a YAML or JSON snapshot. A missing
// capability section is treated as no capabilities.
func Parse(data []byte) (*Snapshot, error) {
	s := &Snapshot{}
	if err := yaml.UnmarshalStrict(data, s); err != nil {
		return nil, fmt.Errorf("%w: %w", pqos.ErrInvalidSnapshot, err)
	}

	if s.Capabilities == nil {
		s.Capabilities = pqos.NewCapabilities()
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Load reads a snapshot from the given file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Info("loaded snapshot %s with %d cores and %d capabilities", path,
		s.CPU.NumCores(), len(s.Capabilities.Items))

	return s, nil
}

// Marshal validates the snapshot and returns it as YAML.
func (s *Snapshot) Marshal() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(s)
}

// Save writes the snapshot as YAML to the given file.
func (s *Snapshot) Save(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	log.Info("saved snapshot %s", path)
	return nil
}
