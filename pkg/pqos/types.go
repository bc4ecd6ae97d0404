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

	logger "github.com/containers/pqos-query/pkg/log"
)

var (
	log = logger.Get("pqos")
)

// TopologyObject is a kind of CPU topology object cores can be grouped by.
type TopologyObject int

const (
	TopologySocket    TopologyObject = iota // physical package
	TopologyL2Cluster                       // cores sharing an L2 cache
	TopologyL3Cluster                       // cores sharing an L3 cache
)

var (
	topologyObjectToString = map[TopologyObject]string{
		TopologySocket:    "socket",
		TopologyL2Cluster: "l2-cluster",
		TopologyL3Cluster: "l3-cluster",
	}
	stringToTopologyObject = map[string]TopologyObject{
		"socket":     TopologySocket,
		"l2-cluster": TopologyL2Cluster,
		"l2":         TopologyL2Cluster,
		"l3-cluster": TopologyL3Cluster,
		"l3":         TopologyL3Cluster,
	}
)

// TopologyObjects returns all known topology object kinds.
func TopologyObjects() []TopologyObject {
	return []TopologyObject{TopologySocket, TopologyL2Cluster, TopologyL3Cluster}
}

// ParseTopologyObject parses the given string into a topology object kind.
func ParseTopologyObject(str string) (TopologyObject, error) {
	if o, ok := stringToTopologyObject[strings.ToLower(str)]; ok {
		return o, nil
	}
	return 0, fmt.Errorf("%w: unknown topology object %q", ErrInvalidArgument, str)
}

// IsValid returns true if the topology object kind is known.
func (o TopologyObject) IsValid() bool {
	_, ok := topologyObjectToString[o]
	return ok
}

// String returns a string representation of the topology object kind.
func (o TopologyObject) String() string {
	if str, ok := topologyObjectToString[o]; ok {
		return str
	}
	return fmt.Sprintf("%%!(pqos:Bad-TopologyObject %d)", o)
}

// CoreInfo describes a single logical core.
type CoreInfo struct {
	// LCore is the logical core ID, unique within a CPUInfo.
	LCore uint `json:"lcore"`
	// Socket is the ID of the physical package of the core.
	Socket uint `json:"socket"`
	// L2ID is the ID of the L2 cache cluster of the core.
	L2ID uint `json:"l2id"`
	// L3ID is the ID of the L3 cache cluster of the core.
	L3ID uint `json:"l3id"`
	// NUMA is the NUMA node of the core.
	NUMA uint `json:"numa,omitempty"`
}

// key returns the ID of the topology object of the given kind for the core.
func (c *CoreInfo) key(o TopologyObject) uint {
	switch o {
	case TopologySocket:
		return c.Socket
	case TopologyL2Cluster:
		return c.L2ID
	case TopologyL3Cluster:
		return c.L3ID
	}
	panic(fmt.Errorf("pqos: internal error: unchecked topology object %d", o))
}

// CacheInfo describes one level of CPU cache.
type CacheInfo struct {
	Detected      bool   `json:"detected,omitempty"`
	NumWays       uint   `json:"numWays,omitempty"`
	NumSets       uint   `json:"numSets,omitempty"`
	NumPartitions uint   `json:"numPartitions,omitempty"`
	LineSize      uint   `json:"lineSize,omitempty"`
	TotalSize     uint64 `json:"totalSize,omitempty"`
	WaySize       uint64 `json:"waySize,omitempty"`
}

// CPUInfo is a snapshot of the CPU topology of a system.
type CPUInfo struct {
	// Vendor is the CPU vendor, if known.
	Vendor string `json:"vendor,omitempty"`
	// L2 describes the L2 caches of the system.
	L2 CacheInfo `json:"l2,omitempty"`
	// L3 describes the L3 caches of the system.
	L3 CacheInfo `json:"l3,omitempty"`
	// Cores lists all logical cores of the system.
	Cores []CoreInfo `json:"cores"`
}

// NumCores returns the number of logical cores in the snapshot.
func (ci *CPUInfo) NumCores() int {
	if ci == nil {
		return 0
	}
	return len(ci.Cores)
}

// MarshalJSON is the json.Marshaller for TopologyObject.
func (o TopologyObject) MarshalJSON() ([]byte, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("%w: unknown topology object %d", ErrInvalidArgument, o)
	}
	return json.Marshal(o.String())
}

// UnmarshalJSON is the json.Unmarshaller for TopologyObject.
func (o *TopologyObject) UnmarshalJSON(data []byte) error {
	str := ""
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	parsed, err := ParseTopologyObject(str)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
