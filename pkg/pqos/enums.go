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
	"strings"
)

// CapType is the type of a resource control capability.
type CapType int

const (
	CapTypeMon  CapType = iota // resource monitoring
	CapTypeL3CA                // L3 cache allocation
	CapTypeL2CA                // L2 cache allocation
	CapTypeMBA                 // memory bandwidth allocation
)

var (
	capTypeToString = map[CapType]string{
		CapTypeMon:  "mon",
		CapTypeL3CA: "l3ca",
		CapTypeL2CA: "l2ca",
		CapTypeMBA:  "mba",
	}
	stringToCapType = map[string]CapType{
		"mon":  CapTypeMon,
		"l3ca": CapTypeL3CA,
		"l2ca": CapTypeL2CA,
		"mba":  CapTypeMBA,
	}
)

// CapTypes returns all known capability types.
func CapTypes() []CapType {
	return []CapType{CapTypeMon, CapTypeL3CA, CapTypeL2CA, CapTypeMBA}
}

// ParseCapType parses the given string into a capability type.
func ParseCapType(str string) (CapType, error) {
	if t, ok := stringToCapType[strings.ToLower(str)]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: unknown capability type %q", ErrInvalidArgument, str)
}

// IsValid returns true if the capability type is known.
func (t CapType) IsValid() bool {
	_, ok := capTypeToString[t]
	return ok
}

// IsAllocation returns true if the capability type has classes of service.
func (t CapType) IsAllocation() bool {
	return t == CapTypeL3CA || t == CapTypeL2CA || t == CapTypeMBA
}

// String returns a string representation of the capability type.
func (t CapType) String() string {
	if str, ok := capTypeToString[t]; ok {
		return str
	}
	return fmt.Sprintf("%%!(pqos:Bad-CapType %d)", t)
}

// MarshalJSON is the json.Marshaller for CapType.
func (t CapType) MarshalJSON() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: unknown capability type %d", ErrInvalidArgument, t)
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON is the json.Unmarshaller for CapType.
func (t *CapType) UnmarshalJSON(data []byte) error {
	str := ""
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	parsed, err := ParseCapType(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MonEvent is a monitoring event. Events are bit flags so that a set of
// events can be represented as a mask.
type MonEvent uint

const (
	MonEventL3Occupancy MonEvent = 0x1     // LLC occupancy
	MonEventLocalMemBW  MonEvent = 0x2     // local memory bandwidth
	MonEventTotalMemBW  MonEvent = 0x4     // total memory bandwidth
	MonEventRemoteMemBW MonEvent = 0x8     // remote memory bandwidth, total minus local
	PerfEventLLCMiss    MonEvent = 0x4000  // LLC misses
	PerfEventIPC        MonEvent = 0x8000  // instructions per clock
	PerfEventLLCRef     MonEvent = 0x10000 // LLC references
)

var (
	monEventToString = map[MonEvent]string{
		MonEventL3Occupancy: "l3-occupancy",
		MonEventLocalMemBW:  "local-mem-bw",
		MonEventTotalMemBW:  "total-mem-bw",
		MonEventRemoteMemBW: "remote-mem-bw",
		PerfEventLLCMiss:    "llc-miss",
		PerfEventIPC:        "ipc",
		PerfEventLLCRef:     "llc-ref",
	}
	stringToMonEvent = func() map[string]MonEvent {
		m := make(map[string]MonEvent, len(monEventToString))
		for e, s := range monEventToString {
			m[s] = e
		}
		return m
	}()
)

// MonEvents returns all known monitoring events.
func MonEvents() []MonEvent {
	return []MonEvent{
		MonEventL3Occupancy,
		MonEventLocalMemBW,
		MonEventTotalMemBW,
		MonEventRemoteMemBW,
		PerfEventLLCMiss,
		PerfEventIPC,
		PerfEventLLCRef,
	}
}

// ParseMonEvent parses the given string into a monitoring event.
func ParseMonEvent(str string) (MonEvent, error) {
	if e, ok := stringToMonEvent[strings.ToLower(str)]; ok {
		return e, nil
	}
	return 0, fmt.Errorf("%w: unknown monitoring event %q", ErrInvalidArgument, str)
}

// IsValid returns true if the monitoring event is a single known event.
func (e MonEvent) IsValid() bool {
	_, ok := monEventToString[e]
	return ok
}

// String returns a string representation of the monitoring event.
func (e MonEvent) String() string {
	if str, ok := monEventToString[e]; ok {
		return str
	}
	return fmt.Sprintf("%%!(pqos:Bad-MonEvent 0x%x)", uint(e))
}

// MarshalJSON is the json.Marshaller for MonEvent.
func (e MonEvent) MarshalJSON() ([]byte, error) {
	if !e.IsValid() {
		return nil, fmt.Errorf("%w: unknown monitoring event 0x%x", ErrInvalidArgument, uint(e))
	}
	return json.Marshal(e.String())
}

// UnmarshalJSON is the json.Unmarshaller for MonEvent.
func (e *MonEvent) UnmarshalJSON(data []byte) error {
	str := ""
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	parsed, err := ParseMonEvent(str)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
