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

// Package hwinfo discovers the CPU topology of a system using ghw.
package hwinfo

import (
	"fmt"
	"slices"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/cpu"
	"github.com/jaypipes/ghw/pkg/memory"
	"github.com/jaypipes/ghw/pkg/topology"

	logger "github.com/containers/pqos-query/pkg/log"
	"github.com/containers/pqos-query/pkg/pqos"
)

var (
	log = logger.NewLogger("hwinfo")
)

// DiscoverCPUInfo discovers the CPU topology of the system with its root
// filesystem at root. An empty root means the running system.
func DiscoverCPUInfo(root string) (*pqos.CPUInfo, error) {
	var opts []any
	if root != "" && root != "/" {
		opts = append(opts, ghw.WithChroot(root))
	}

	cpus, err := ghw.CPU(opts...)
	if err != nil {
		return nil, fmt.Errorf("hwinfo: failed to get CPU info: %w", err)
	}

	topo, err := ghw.Topology(opts...)
	if err != nil {
		return nil, fmt.Errorf("hwinfo: failed to get topology info: %w", err)
	}

	return Convert(cpus, topo)
}

// Convert converts ghw CPU and topology info to a CPU topology snapshot.
// Every logical processor becomes a core. Cache clusters are identified
// by the lowest logical processor sharing the cache.
func Convert(cpus *cpu.Info, topo *topology.Info) (*pqos.CPUInfo, error) {
	if cpus == nil {
		return nil, fmt.Errorf("hwinfo: no CPU info")
	}

	var (
		ci    = &pqos.CPUInfo{}
		cores = map[int]*pqos.CoreInfo{}
		ids   []int
	)

	for _, p := range cpus.Processors {
		if ci.Vendor == "" {
			ci.Vendor = p.Vendor
		}
		for _, core := range p.Cores {
			for _, lp := range core.LogicalProcessors {
				if _, ok := cores[lp]; ok {
					return nil, fmt.Errorf("hwinfo: logical processor %d listed twice", lp)
				}
				cores[lp] = &pqos.CoreInfo{
					LCore:  uint(lp),
					Socket: uint(p.ID),
					L2ID:   uint(lp),
					L3ID:   uint(p.ID),
				}
				ids = append(ids, lp)
			}
		}
	}

	if topo != nil {
		for _, node := range topo.Nodes {
			for _, core := range node.Cores {
				for _, lp := range core.LogicalProcessors {
					if c, ok := cores[lp]; ok {
						c.NUMA = uint(node.ID)
					}
				}
			}
			for _, cache := range node.Caches {
				assignCache(ci, cores, cache)
			}
		}
	}

	slices.Sort(ids)
	for _, id := range ids {
		ci.Cores = append(ci.Cores, *cores[id])
	}

	if err := ci.Validate(); err != nil {
		return nil, err
	}

	log.Debug("converted %d logical processors of %d packages", len(ci.Cores), len(cpus.Processors))

	return ci, nil
}

// assignCache assigns the cluster of an L2 or L3 cache to the sharing cores.
func assignCache(ci *pqos.CPUInfo, cores map[int]*pqos.CoreInfo, cache *memory.Cache) {
	if cache == nil || len(cache.LogicalProcessors) == 0 {
		return
	}
	if cache.Type == memory.CacheTypeInstruction {
		return
	}

	var info *pqos.CacheInfo
	switch cache.Level {
	case 2:
		info = &ci.L2
	case 3:
		info = &ci.L3
	default:
		return
	}

	if !info.Detected {
		info.Detected = true
		info.TotalSize = cache.SizeBytes
	}

	id := uint(slices.Min(cache.LogicalProcessors))
	for _, lp := range cache.LogicalProcessors {
		c, ok := cores[int(lp)]
		if !ok {
			continue
		}
		if cache.Level == 2 {
			c.L2ID = id
		} else {
			c.L3ID = id
		}
	}
}
