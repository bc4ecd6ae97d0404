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
	"fmt"
)

// Capability is a single resource control capability. The set of
// implementations is closed: *MonCapability, *L3CACapability,
// *L2CACapability and *MBACapability.
type Capability interface {
	// Type returns the type of the capability.
	Type() CapType

	capability()
}

// MonEventInfo describes a supported monitoring event.
type MonEventInfo struct {
	// Type is the monitoring event.
	Type MonEvent `json:"type"`
	// MaxRMID is the number of resource monitoring IDs for the event.
	MaxRMID uint `json:"maxRMID,omitempty"`
	// ScaleFactor converts counter values to bytes.
	ScaleFactor uint `json:"scaleFactor,omitempty"`
	// CounterLength is the width of the counter in bits.
	CounterLength uint `json:"counterLength,omitempty"`
}

// MonCapability is the resource monitoring capability.
type MonCapability struct {
	MaxRMID uint           `json:"maxRMID,omitempty"`
	L3Size  uint64         `json:"l3Size,omitempty"`
	Events  []MonEventInfo `json:"events,omitempty"`
}

// L3CACapability is the L3 cache allocation capability.
type L3CACapability struct {
	NumClasses    uint   `json:"numClasses"`
	NumWays       uint   `json:"numWays,omitempty"`
	WaySize       uint64 `json:"waySize,omitempty"`
	WayContention uint64 `json:"wayContention,omitempty"`
	CDP           bool   `json:"cdp,omitempty"`
	CDPOn         bool   `json:"cdpOn,omitempty"`
}

// L2CACapability is the L2 cache allocation capability.
type L2CACapability struct {
	NumClasses    uint   `json:"numClasses"`
	NumWays       uint   `json:"numWays,omitempty"`
	WaySize       uint64 `json:"waySize,omitempty"`
	WayContention uint64 `json:"wayContention,omitempty"`
	CDP           bool   `json:"cdp,omitempty"`
	CDPOn         bool   `json:"cdpOn,omitempty"`
}

// MBACapability is the memory bandwidth allocation capability.
type MBACapability struct {
	NumClasses   uint `json:"numClasses"`
	ThrottleMax  uint `json:"throttleMax,omitempty"`
	ThrottleStep uint `json:"throttleStep,omitempty"`
	IsLinear     bool `json:"isLinear,omitempty"`
	Ctrl         bool `json:"ctrl,omitempty"`
	CtrlOn       bool `json:"ctrlOn,omitempty"`
}

func (*MonCapability) Type() CapType  { return CapTypeMon }
func (*L3CACapability) Type() CapType { return CapTypeL3CA }
func (*L2CACapability) Type() CapType { return CapTypeL2CA }
func (*MBACapability) Type() CapType  { return CapTypeMBA }

func (*MonCapability) capability()  {}
func (*L3CACapability) capability() {}
func (*L2CACapability) capability() {}
func (*MBACapability) capability()  {}

// Capabilities is a snapshot of the resource control capabilities of a
// system. At most one capability of each type is expected.
type Capabilities struct {
	Items []Capability
}

// NewCapabilities returns a snapshot with the given capabilities.
func NewCapabilities(items ...Capability) *Capabilities {
	return &Capabilities{Items: items}
}

// Get returns the first capability of the given type. The result is
// borrowed from the snapshot. ErrCapabilityAbsent is returned if the
// snapshot has no such capability.
func (c *Capabilities) Get(t CapType) (Capability, error) {
	if c == nil {
		return nil, invalidArgError("nil capabilities")
	}
	if !t.IsValid() {
		return nil, invalidArgError("unknown capability type %d", t)
	}

	for _, item := range c.Items {
		if !isNilCapability(item) && item.Type() == t {
			return item, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrCapabilityAbsent, t)
}

// Has returns true if the snapshot has a capability of the given type.
func (c *Capabilities) Has(t CapType) bool {
	_, err := c.Get(t)
	return err == nil
}

// getAs looks up the capability of the given type as its implementation.
func getAs[T Capability](c *Capabilities, t CapType) (T, error) {
	var none T

	item, err := c.Get(t)
	if err != nil {
		return none, err
	}

	capa, ok := item.(T)
	if !ok {
		return none, fmt.Errorf("pqos: internal error: %s capability of type %T", t, item)
	}

	return capa, nil
}

// Mon returns the monitoring capability.
func (c *Capabilities) Mon() (*MonCapability, error) {
	return getAs[*MonCapability](c, CapTypeMon)
}

// L3CA returns the L3 cache allocation capability.
func (c *Capabilities) L3CA() (*L3CACapability, error) {
	return getAs[*L3CACapability](c, CapTypeL3CA)
}

// L2CA returns the L2 cache allocation capability.
func (c *Capabilities) L2CA() (*L2CACapability, error) {
	return getAs[*L2CACapability](c, CapTypeL2CA)
}

// MBA returns the memory bandwidth allocation capability.
func (c *Capabilities) MBA() (*MBACapability, error) {
	return getAs[*MBACapability](c, CapTypeMBA)
}

// Event returns the description of the given monitoring event. The
// result is borrowed from the snapshot. ErrCapabilityAbsent is returned
// if monitoring is not supported, ErrNotFound if the event is not.
func (c *Capabilities) Event(e MonEvent) (*MonEventInfo, error) {
	if c == nil {
		return nil, invalidArgError("nil capabilities")
	}
	if !e.IsValid() {
		return nil, invalidArgError("unknown monitoring event 0x%x", uint(e))
	}

	mon, err := c.Mon()
	if err != nil {
		return nil, err
	}

	for i := range mon.Events {
		if mon.Events[i].Type == e {
			return &mon.Events[i], nil
		}
	}

	return nil, notFoundError("monitoring event %s", e)
}

// ClassCount returns the number of classes of service of the given
// allocation capability (L3CA, L2CA or MBA).
func (c *Capabilities) ClassCount(t CapType) (uint, error) {
	if c == nil {
		return 0, invalidArgError("nil capabilities")
	}
	if !t.IsAllocation() {
		return 0, invalidArgError("%s is not an allocation capability", t)
	}

	item, err := c.Get(t)
	if err != nil {
		return 0, err
	}

	switch capa := item.(type) {
	case *L3CACapability:
		return capa.NumClasses, nil
	case *L2CACapability:
		return capa.NumClasses, nil
	case *MBACapability:
		return capa.NumClasses, nil
	case *MonCapability:
		return 0, invalidArgError("%s has no classes of service", t)
	}

	return 0, fmt.Errorf("pqos: internal error: unhandled capability %T", item)
}

// CDPState returns the code and data prioritization state of the given
// cache allocation capability (L3CA or L2CA). Only the requested states
// are returned. At least one of supported and enabled must be non-nil.
func (c *Capabilities) CDPState(t CapType, supported, enabled *bool) error {
	if c == nil {
		return invalidArgError("nil capabilities")
	}
	if supported == nil && enabled == nil {
		return invalidArgError("no CDP state requested")
	}
	if t != CapTypeL3CA && t != CapTypeL2CA {
		return invalidArgError("%s is not a cache allocation capability", t)
	}

	item, err := c.Get(t)
	if err != nil {
		return err
	}

	var cdp, cdpOn bool
	switch capa := item.(type) {
	case *L3CACapability:
		cdp, cdpOn = capa.CDP, capa.CDPOn
	case *L2CACapability:
		cdp, cdpOn = capa.CDP, capa.CDPOn
	case *MonCapability, *MBACapability:
		return invalidArgError("%s has no CDP state", t)
	default:
		return fmt.Errorf("pqos: internal error: unhandled capability %T", item)
	}

	if supported != nil {
		*supported = cdp
	}
	if enabled != nil {
		*enabled = cdpOn
	}

	return nil
}

// CDP returns both the CDP supported and enabled states of the given
// cache allocation capability.
func (c *Capabilities) CDP(t CapType) (supported, enabled bool, err error) {
	err = c.CDPState(t, &supported, &enabled)
	return supported, enabled, err
}
