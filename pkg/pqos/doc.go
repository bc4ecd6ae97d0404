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

// Package pqos implements read-only queries over platform quality of
// service (QoS) data: the CPU topology of the system and the resource
// control capabilities available on it.
//
// # Snapshots
//
// Queries operate on two snapshots. CPUInfo is a flat list of logical
// cores, each tagged with the socket, L2 cluster and L3 cluster it belongs
// to. Capabilities is a list of resource control features, such as cache
// monitoring, L3 or L2 cache allocation, or memory bandwidth allocation.
// Snapshots are created once, usually by one of the discovery packages
// (sysfs, resctrl, hwinfo) or by loading a snapshot file, and are never
// modified by this package. Any number of goroutines can query the same
// snapshot as long as nobody modifies it at the same time.
//
// # Topology Queries
//
// Cores can be grouped by socket, L2 cluster or L3 cluster. CountGroups
// counts the distinct groups of a kind, CoresInGroup lists the logical
// cores of one group. Sockets and SocketCores fill caller provided buffers
// and fail with ErrOverflow if the buffer is too small to hold the full
// result. SocketCores has a shortcut for single-entry buffers: it returns
// the first core found on the socket.
//
// # Capability Queries
//
// Get looks up a capability by type. Capabilities that the platform does
// not provide are reported with ErrCapabilityAbsent, which callers can use
// to tell an unsupported feature apart from a bad query. Event, ClassCount
// and CDPState resolve their capability using Get and then look into it.
//
// Values returned by capability queries are borrowed from the snapshot
// and stay valid as long as the snapshot does. Core lists returned by
// topology queries are freshly allocated and belong to the caller.
package pqos
