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

import (
	"github.com/hashicorp/go-multierror"
)

// Validate checks the topology snapshot, reporting all problems found.
func (ci *CPUInfo) Validate() error {
	if ci == nil {
		return snapshotError("nil CPU topology")
	}

	var result *multierror.Error

	if len(ci.Cores) == 0 {
		result = multierror.Append(result, snapshotError("CPU topology without cores"))
	}

	seen := make(map[uint]int, len(ci.Cores))
	for idx := range ci.Cores {
		lcore := ci.Cores[idx].LCore
		if prev, ok := seen[lcore]; ok {
			result = multierror.Append(result,
				snapshotError("cores #%d and #%d both have logical core ID %d", prev, idx, lcore))
			continue
		}
		seen[lcore] = idx
	}

	return result.ErrorOrNil()
}

// Validate checks the capability snapshot, reporting all problems found.
func (c *Capabilities) Validate() error {
	if c == nil {
		return snapshotError("nil capabilities")
	}

	var (
		result *multierror.Error
		seen   = make(map[CapType]int)
	)

	for idx, item := range c.Items {
		if isNilCapability(item) {
			result = multierror.Append(result, snapshotError("capability #%d is nil", idx))
			continue
		}

		t := item.Type()
		if prev, ok := seen[t]; ok {
			result = multierror.Append(result,
				snapshotError("capabilities #%d and #%d are both %s", prev, idx, t))
		} else {
			seen[t] = idx
		}

		switch capa := item.(type) {
		case *MonCapability:
			events := MonEvent(0)
			for _, e := range capa.Events {
				if !e.Type.IsValid() {
					result = multierror.Append(result,
						snapshotError("%s: unknown event 0x%x", t, uint(e.Type)))
					continue
				}
				if events&e.Type != 0 {
					result = multierror.Append(result,
						snapshotError("%s: duplicate event %s", t, e.Type))
				}
				events |= e.Type
			}
		case *L3CACapability:
			if capa.NumClasses == 0 {
				result = multierror.Append(result, snapshotError("%s: no classes of service", t))
			}
		case *L2CACapability:
			if capa.NumClasses == 0 {
				result = multierror.Append(result, snapshotError("%s: no classes of service", t))
			}
		case *MBACapability:
			if capa.NumClasses == 0 {
				result = multierror.Append(result, snapshotError("%s: no classes of service", t))
			}
		}
	}

	return result.ErrorOrNil()
}

func isNilCapability(item Capability) bool {
	switch capa := item.(type) {
	case nil:
		return true
	case *MonCapability:
		return capa == nil
	case *L3CACapability:
		return capa == nil
	case *L2CACapability:
		return capa == nil
	case *MBACapability:
		return capa == nil
	}
	return false
}
