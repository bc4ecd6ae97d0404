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
	"encoding/json"
	"fmt"
)

// capabilityEntry is the external representation of a Capability.
type capabilityEntry struct {
	Type CapType         `json:"type"`
	Mon  *MonCapability  `json:"mon,omitempty"`
	L3CA *L3CACapability `json:"l3ca,omitempty"`
	L2CA *L2CACapability `json:"l2ca,omitempty"`
	MBA  *MBACapability  `json:"mba,omitempty"`
}

// MarshalJSON is the json.Marshaller for Capabilities.
func (c Capabilities) MarshalJSON() ([]byte, error) {
	entries := make([]capabilityEntry, 0, len(c.Items))
	for idx, item := range c.Items {
		var e capabilityEntry
		switch capa := item.(type) {
		case *MonCapability:
			e.Mon = capa
		case *L3CACapability:
			e.L3CA = capa
		case *L2CACapability:
			e.L2CA = capa
		case *MBACapability:
			e.MBA = capa
		default:
			return nil, snapshotError("capability #%d: can't marshal %T", idx, item)
		}
		e.Type = item.Type()
		entries = append(entries, e)
	}
	return json.Marshal(entries)
}

// UnmarshalJSON is the json.Unmarshaller for Capabilities.
func (c *Capabilities) UnmarshalJSON(data []byte) error {
	var entries []capabilityEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	items := make([]Capability, 0, len(entries))
	for idx, e := range entries {
		var (
			item    Capability
			payload int
		)
		if e.Mon != nil {
			item = e.Mon
			payload++
		}
		if e.L3CA != nil {
			item = e.L3CA
			payload++
		}
		if e.L2CA != nil {
			item = e.L2CA
			payload++
		}
		if e.MBA != nil {
			item = e.MBA
			payload++
		}

		switch {
		case payload == 0:
			return snapshotError("capability #%d (%s): missing details", idx, e.Type)
		case payload > 1:
			return snapshotError("capability #%d (%s): conflicting details", idx, e.Type)
		case item.Type() != e.Type:
			return snapshotError("capability #%d: %s details for %s", idx, item.Type(), e.Type)
		}

		items = append(items, item)
	}

	c.Items = items
	return nil
}
