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

package sysfs

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	idset "github.com/intel/goresctrl/pkg/utils"

	logger "github.com/containers/pqos-query/pkg/log"
	"github.com/containers/pqos-query/pkg/pqos"
	"github.com/containers/pqos-query/pkg/utils/cpuset"
)

var (
	// Parent directory under which host sysfs, etc. is mounted (if non-standard location).
	sysRoot = ""
	// Our logger instance.
	log = logger.NewLogger("sysfs")
)

const (
	// sysfs devices/cpu subdirectory path
	sysfsCPUPath = "devices/system/cpu"
)

// SetSysRoot sets the sys root directory.
func SetSysRoot(path string) {
	sysRoot = path
}

// DiscoverCPUInfo discovers the CPU topology of the running system.
func DiscoverCPUInfo() (*pqos.CPUInfo, error) {
	return DiscoverCPUInfoAt(filepath.Join("/", sysRoot, "sys"))
}

// DiscoverCPUInfoAt discovers the CPU topology from sysfs mounted at path.
func DiscoverCPUInfoAt(path string) (*pqos.CPUInfo, error) {
	d := &discovery{
		path:  path,
		cache: map[int]*pqos.CacheInfo{},
	}

	if err := d.discoverCPUs(); err != nil {
		return nil, err
	}
	d.resolveClusterIDs()

	ci := &pqos.CPUInfo{
		Cores: d.cores,
	}
	if c, ok := d.cache[2]; ok {
		ci.L2 = *c
	}
	if c, ok := d.cache[3]; ok {
		ci.L3 = *c
	}

	if err := ci.Validate(); err != nil {
		return nil, err
	}

	if log.DebugEnabled() {
		log.Debug("discovered %d logical cores at %s", len(ci.Cores), path)
		for _, c := range ci.Cores {
			log.Debug("  core #%d: socket %d, L2 %d, L3 %d, NUMA node %d",
				c.LCore, c.Socket, c.L2ID, c.L3ID, c.NUMA)
		}
	}

	return ci, nil
}

// discovery is the state of an ongoing sysfs discovery.
type discovery struct {
	path   string
	online cpuset.CPUSet
	cores  []pqos.CoreInfo
	l2     []clusterID
	l3     []clusterID
	cache  map[int]*pqos.CacheInfo
}

// cacheEntry is a single per-CPU cache index entry.
type cacheEntry struct {
	level     int
	kind      string
	id        int
	synthetic bool
	cpus      cpuset.CPUSet
	path      string
}

// idSource tells where the L2 or L3 cluster ID of a core comes from.
type idSource int

const (
	// the id entry of the cache
	idFromCache idSource = iota
	// no cache, the core is its own cluster
	idFromCore
	// no cache, the socket is its own cluster
	idFromSocket
	// no cache id entry, the lowest CPU sharing the cache
	idFromSharedCPUs
)

// clusterID is a cluster ID together with its source.
type clusterID struct {
	source idSource
	id     uint
}

func (d *discovery) discoverCPUs() error {
	base := filepath.Join(d.path, sysfsCPUPath)

	haveOnline := true
	if _, err := readSysfsEntry(base, "online", &d.online); err != nil {
		log.Warn("failed to get set of online cpus, assuming all are online: %v", err)
		haveOnline = false
	}

	entries, _ := filepath.Glob(filepath.Join(base, "cpu[0-9]*"))
	paths := map[idset.ID]string{}
	ids := idset.NewIDSet()
	for _, entry := range entries {
		id := getEnumeratedID(entry)
		if id < 0 {
			continue
		}
		if haveOnline && !d.online.Contains(id) {
			log.Debug("skipping offline cpu #%d", id)
			continue
		}
		ids.Add(id)
		paths[id] = entry
	}

	if ids.Size() == 0 {
		return sysfsError(base, "no online cpus found")
	}

	for _, id := range ids.SortedMembers() {
		if err := d.discoverCPU(id, paths[id]); err != nil {
			return fmt.Errorf("failed to discover cpu for entry %s: %w", paths[id], err)
		}
	}

	return nil
}

func (d *discovery) discoverCPU(id idset.ID, path string) error {
	core := pqos.CoreInfo{
		LCore: uint(id),
	}

	if _, err := readSysfsEntry(path, "topology/physical_package_id", &core.Socket); err != nil {
		return err
	}

	if node, _ := filepath.Glob(filepath.Join(path, "node[0-9]*")); len(node) == 1 {
		core.NUMA = uint(getEnumeratedID(node[0]))
	} else if len(node) > 1 {
		return sysfsError(path, "exactly one node per cpu allowed")
	}

	// without an L2 or L3 cache the core or the socket is its own cluster
	l2 := clusterID{source: idFromCore, id: core.LCore}
	l3 := clusterID{source: idFromSocket, id: core.Socket}

	entries, _ := filepath.Glob(filepath.Join(path, "cache/index[0-9]*"))
	for _, entry := range entries {
		c, err := d.discoverCache(entry)
		if err != nil {
			return err
		}
		if c == nil {
			continue
		}
		id := clusterID{source: idFromCache, id: uint(c.id)}
		if c.synthetic {
			id.source = idFromSharedCPUs
		}
		switch c.level {
		case 2:
			l2 = id
		case 3:
			l3 = id
		}
	}

	if l2.source == idFromCore {
		log.Warn("cpu #%d: no L2 cache, using cpu ID as L2 cluster ID", core.LCore)
	}
	if l3.source == idFromSocket {
		log.Debug("cpu #%d: no L3 cache, using socket ID as L3 cluster ID", core.LCore)
	}

	d.cores = append(d.cores, core)
	d.l2 = append(d.l2, l2)
	d.l3 = append(d.l3, l3)

	return nil
}

// discoverCache reads a cache index entry. Instruction caches and cache
// levels other than L2 and L3 are ignored.
func (d *discovery) discoverCache(path string) (*cacheEntry, error) {
	c := &cacheEntry{path: path}

	if _, err := readSysfsEntry(path, "level", &c.level); err != nil {
		return nil, sysfsError(path, "can't read cache level: %v", err)
	}
	if c.level != 2 && c.level != 3 {
		return nil, nil
	}

	if _, err := readSysfsEntry(path, "type", &c.kind); err != nil {
		return nil, sysfsError(path, "can't read cache type: %v", err)
	}
	switch c.kind {
	case "Data", "Unified":
	case "Instruction":
		return nil, nil
	default:
		return nil, sysfsError(path, "unknown cache type: %s", c.kind)
	}

	if _, err := readSysfsEntry(path, "shared_cpu_list", &c.cpus); err != nil {
		return nil, sysfsError(path, "can't read shared CPUs: %v", err)
	}

	if _, err := readSysfsEntry(path, "id", &c.id); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, sysfsError(path, "can't read cache id: %v", err)
		}
		if c.cpus.Size() == 0 {
			return nil, sysfsError(path, "no cache id and no shared CPUs")
		}
		c.id = c.cpus.List()[0]
		c.synthetic = true
		log.Warn("%s: no cache id, using lowest shared CPU %d", path, c.id)
	}

	if _, ok := d.cache[c.level]; !ok {
		info, err := d.cacheInfo(path)
		if err != nil {
			return nil, err
		}
		d.cache[c.level] = info
	}

	return c, nil
}

// resolveClusterIDs sets the L2 and L3 IDs of the discovered cores.
func (d *discovery) resolveClusterIDs() {
	for i, id := range resolveIDs("L2", d.l2) {
		d.cores[i].L2ID = id
	}
	for i, id := range resolveIDs("L3", d.l3) {
		d.cores[i].L3ID = id
	}
}

// resolveIDs turns the cluster IDs of one cache level into plain IDs.
// IDs are used as is unless the same value comes from different sources,
// which would merge unrelated clusters. In that case every ID not read
// from a cache id entry is renumbered above the largest ID in use, in
// the order of first appearance.
func resolveIDs(level string, ids []clusterID) []uint {
	var (
		sources = map[uint]idSource{}
		clash   = false
		maxID   = uint(0)
		result  = make([]uint, len(ids))
	)

	for _, c := range ids {
		if src, ok := sources[c.id]; ok && src != c.source {
			clash = true
		}
		sources[c.id] = c.source
		maxID = max(maxID, c.id)
	}

	if !clash {
		for i, c := range ids {
			result[i] = c.id
		}
		return result
	}

	log.Warn("%s cluster IDs of different origin clash, renumbering synthetic IDs from %d",
		level, maxID+1)

	renumbered := map[clusterID]uint{}
	for i, c := range ids {
		if c.source == idFromCache {
			result[i] = c.id
			continue
		}
		id, ok := renumbered[c]
		if !ok {
			id = maxID + 1 + uint(len(renumbered))
			renumbered[c] = id
		}
		result[i] = id
	}

	return result
}

// cacheInfo reads the geometry of a cache.
func (d *discovery) cacheInfo(path string) (*pqos.CacheInfo, error) {
	info := &pqos.CacheInfo{Detected: true}

	size := ""
	if _, err := readSysfsEntry(path, "size", &size); err != nil {
		return nil, sysfsError(path, "can't read cache size: %v", err)
	}
	total, err := parseCacheSize(strings.TrimSpace(size))
	if err != nil {
		return nil, sysfsError(path, "%v", err)
	}
	info.TotalSize = total

	for entry, ptr := range map[string]*uint{
		"ways_of_associativity":   &info.NumWays,
		"number_of_sets":          &info.NumSets,
		"coherency_line_size":     &info.LineSize,
		"physical_line_partition": &info.NumPartitions,
	} {
		if _, err := readSysfsEntry(path, entry, ptr); err != nil {
			log.Debug("%s: can't read %s: %v", path, entry, err)
		}
	}

	if info.NumWays > 0 {
		info.WaySize = info.TotalSize / uint64(info.NumWays)
	}

	return info, nil
}
