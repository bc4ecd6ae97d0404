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
	"slices"
)

// checkTopology checks that the snapshot and the object kind are usable.
func (ci *CPUInfo) checkTopology(o TopologyObject) error {
	if ci == nil {
		return invalidArgError("nil CPU topology")
	}
	if !o.IsValid() {
		return invalidArgError("unknown topology object %d", o)
	}
	return nil
}

// CountGroups returns the number of distinct topology objects of the
// given kind, IOW the number of sockets, L2 or L3 clusters. The snapshot
// must have at least one core.
func (ci *CPUInfo) CountGroups(o TopologyObject) (uint, error) {
	if err := ci.checkTopology(o); err != nil {
		return 0, err
	}
	if len(ci.Cores) == 0 {
		return 0, invalidArgError("CPU topology without cores")
	}

	seen := make(map[uint]struct{}, len(ci.Cores))
	for i := range ci.Cores {
		seen[ci.Cores[i].key(o)] = struct{}{}
	}

	return uint(len(seen)), nil
}

// NumSockets returns the number of sockets in the system. A snapshot
// without cores is rejected with ErrInvalidArgument, so a successful
// call never returns zero.
func (ci *CPUInfo) NumSockets() (uint, error) {
	return ci.CountGroups(TopologySocket)
}

// NumL2Clusters returns the number of L2 clusters in the system.
func (ci *CPUInfo) NumL2Clusters() (uint, error) {
	return ci.CountGroups(TopologyL2Cluster)
}

// NumL3Clusters returns the number of L3 clusters in the system.
func (ci *CPUInfo) NumL3Clusters() (uint, error) {
	return ci.CountGroups(TopologyL3Cluster)
}

// CoresInGroup returns the logical cores which belong to the topology
// object of the given kind and ID, in snapshot order. If no core belongs
// to the object, an empty slice and no error is returned. The returned
// slice is owned by the caller.
func (ci *CPUInfo) CoresInGroup(o TopologyObject, id uint) ([]uint, error) {
	if err := ci.checkTopology(o); err != nil {
		return nil, err
	}

	var cores []uint
	for i := range ci.Cores {
		if ci.Cores[i].key(o) == id {
			cores = append(cores, ci.Cores[i].LCore)
		}
	}

	return cores, nil
}

// CoresForSocket returns the logical cores of the given socket.
func (ci *CPUInfo) CoresForSocket(socket uint) ([]uint, error) {
	return ci.CoresInGroup(TopologySocket, socket)
}

// CoresForL2ID returns the logical cores of the given L2 cluster.
func (ci *CPUInfo) CoresForL2ID(l2id uint) ([]uint, error) {
	return ci.CoresInGroup(TopologyL2Cluster, l2id)
}

// CoresForL3ID returns the logical cores of the given L3 cluster.
func (ci *CPUInfo) CoresForL3ID(l3id uint) ([]uint, error) {
	return ci.CoresInGroup(TopologyL3Cluster, l3id)
}

// GroupIDs returns the distinct IDs of topology objects of the given kind,
// in the order they are first seen in the snapshot.
func (ci *CPUInfo) GroupIDs(o TopologyObject) ([]uint, error) {
	if err := ci.checkTopology(o); err != nil {
		return nil, err
	}

	var (
		ids  []uint
		seen = make(map[uint]struct{})
	)
	for i := range ci.Cores {
		id := ci.Cores[i].key(o)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}

// SocketIDs returns the distinct socket IDs of the system.
func (ci *CPUInfo) SocketIDs() ([]uint, error) {
	return ci.GroupIDs(TopologySocket)
}

// L2IDs returns the distinct L2 cluster IDs of the system.
func (ci *CPUInfo) L2IDs() ([]uint, error) {
	return ci.GroupIDs(TopologyL2Cluster)
}

// L3IDs returns the distinct L3 cluster IDs of the system.
func (ci *CPUInfo) L3IDs() ([]uint, error) {
	return ci.GroupIDs(TopologyL3Cluster)
}

// Sockets writes the distinct socket IDs into buf, in the order they are
// first seen, and returns their number. The capacity of the buffer is its
// length. If there are more sockets than buf can hold, ErrOverflow is
// returned and the content of buf is undefined.
func (ci *CPUInfo) Sockets(buf []uint) (int, error) {
	if ci == nil {
		return 0, invalidArgError("nil CPU topology")
	}
	if len(buf) == 0 {
		return 0, invalidArgError("zero capacity socket buffer")
	}

	cnt := 0
	for i := range ci.Cores {
		socket := ci.Cores[i].Socket
		if slices.Contains(buf[:cnt], socket) {
			continue
		}
		if cnt >= len(buf) {
			return 0, overflowError("sockets", len(buf))
		}
		buf[cnt] = socket
		cnt++
	}

	return cnt, nil
}

// SocketCores writes the logical cores of the given socket into buf and
// returns their number. A single-entry buffer is a request for any one
// core of the socket: the first one found is returned, however many more
// there are. With a larger buffer ErrOverflow is returned if the socket
// has more cores than buf can hold. ErrNotFound is returned if the socket
// has no cores.
func (ci *CPUInfo) SocketCores(socket uint, buf []uint) (int, error) {
	if ci == nil {
		return 0, invalidArgError("nil CPU topology")
	}
	if len(buf) == 0 {
		return 0, invalidArgError("zero capacity core buffer")
	}

	cnt := 0
	for i := range ci.Cores {
		c := &ci.Cores[i]
		if c.Socket != socket {
			continue
		}
		if len(buf) == 1 {
			buf[0] = c.LCore
			return 1, nil
		}
		if cnt >= len(buf) {
			return 0, overflowError("cores", len(buf))
		}
		buf[cnt] = c.LCore
		cnt++
	}

	if cnt == 0 {
		return 0, notFoundError("no cores on socket %d", socket)
	}

	return cnt, nil
}

// OneCore returns the first logical core of the given socket.
func (ci *CPUInfo) OneCore(socket uint) (uint, error) {
	var buf [1]uint
	if _, err := ci.SocketCores(socket, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Core returns the topology details of the given logical core. The result
// is borrowed from the snapshot.
func (ci *CPUInfo) Core(lcore uint) (*CoreInfo, error) {
	if ci == nil {
		return nil, invalidArgError("nil CPU topology")
	}

	for i := range ci.Cores {
		if ci.Cores[i].LCore == lcore {
			return &ci.Cores[i], nil
		}
	}

	return nil, notFoundError("no logical core %d", lcore)
}

// CheckCore returns nil if the given logical core is present, ErrNotFound
// otherwise.
func (ci *CPUInfo) CheckCore(lcore uint) error {
	_, err := ci.Core(lcore)
	return err
}

// SocketID returns the socket ID of the given logical core.
func (ci *CPUInfo) SocketID(lcore uint) (uint, error) {
	c, err := ci.Core(lcore)
	if err != nil {
		return 0, err
	}
	return c.Socket, nil
}

// ClusterID returns the L3 cluster ID of the given logical core. Note that
// "cluster" here always means L3 cluster. Use L2ID for L2 clusters.
func (ci *CPUInfo) ClusterID(lcore uint) (uint, error) {
	c, err := ci.Core(lcore)
	if err != nil {
		return 0, err
	}
	return c.L3ID, nil
}

// L2ID returns the L2 cluster ID of the given logical core.
func (ci *CPUInfo) L2ID(lcore uint) (uint, error) {
	c, err := ci.Core(lcore)
	if err != nil {
		return 0, err
	}
	return c.L2ID, nil
}
