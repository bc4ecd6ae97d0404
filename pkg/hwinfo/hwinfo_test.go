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

package hwinfo

import (
	"testing"

	"github.com/jaypipes/ghw/pkg/cpu"
	"github.com/jaypipes/ghw/pkg/memory"
	"github.com/jaypipes/ghw/pkg/topology"
	"github.com/stretchr/testify/require"

	"github.com/containers/pqos-query/pkg/pqos"
)

func processor(id int, vendor string, threads ...[]int) *cpu.Processor {
	p := &cpu.Processor{ID: id, Vendor: vendor}
	for idx, lps := range threads {
		p.Cores = append(p.Cores, &cpu.ProcessorCore{ID: idx, LogicalProcessors: lps})
	}
	return p
}

func cache(level uint8, kind memory.CacheType, size uint64, lps ...uint32) *memory.Cache {
	return &memory.Cache{Level: level, Type: kind, SizeBytes: size, LogicalProcessors: lps}
}

func TestConvert(t *testing.T) {
	p0 := processor(0, "GenuineIntel", []int{0, 4}, []int{1, 5})
	p1 := processor(1, "GenuineIntel", []int{2, 6}, []int{3, 7})

	cpus := &cpu.Info{Processors: []*cpu.Processor{p0, p1}}
	topo := &topology.Info{
		Nodes: []*topology.Node{
			{
				ID:    0,
				Cores: p0.Cores,
				Caches: []*memory.Cache{
					cache(1, memory.CacheTypeData, 48<<10, 0, 4),
					cache(2, memory.CacheTypeUnified, 2<<20, 0, 4),
					cache(2, memory.CacheTypeUnified, 2<<20, 1, 5),
					cache(3, memory.CacheTypeUnified, 32<<20, 0, 1, 4, 5),
				},
			},
			{
				ID:    1,
				Cores: p1.Cores,
				Caches: []*memory.Cache{
					cache(2, memory.CacheTypeInstruction, 64<<10, 6, 2),
					cache(2, memory.CacheTypeUnified, 2<<20, 6, 2),
					cache(2, memory.CacheTypeUnified, 2<<20, 7, 3),
					cache(3, memory.CacheTypeUnified, 32<<20, 2, 3, 6, 7),
				},
			},
		},
	}

	ci, err := Convert(cpus, topo)
	require.NoError(t, err)
	require.Equal(t, "GenuineIntel", ci.Vendor)
	require.Equal(t, []pqos.CoreInfo{
		{LCore: 0, Socket: 0, L2ID: 0, L3ID: 0, NUMA: 0},
		{LCore: 1, Socket: 0, L2ID: 1, L3ID: 0, NUMA: 0},
		{LCore: 2, Socket: 1, L2ID: 2, L3ID: 2, NUMA: 1},
		{LCore: 3, Socket: 1, L2ID: 3, L3ID: 2, NUMA: 1},
		{LCore: 4, Socket: 0, L2ID: 0, L3ID: 0, NUMA: 0},
		{LCore: 5, Socket: 0, L2ID: 1, L3ID: 0, NUMA: 0},
		{LCore: 6, Socket: 1, L2ID: 2, L3ID: 2, NUMA: 1},
		{LCore: 7, Socket: 1, L2ID: 3, L3ID: 2, NUMA: 1},
	}, ci.Cores)
	require.Equal(t, uint64(2<<20), ci.L2.TotalSize)
	require.Equal(t, uint64(32<<20), ci.L3.TotalSize)

	n, err := ci.NumL2Clusters()
	require.NoError(t, err)
	require.Equal(t, uint(4), n)
}

func TestConvertWithoutTopology(t *testing.T) {
	cpus := &cpu.Info{
		Processors: []*cpu.Processor{
			processor(3, "AuthenticAMD", []int{1}, []int{0}),
		},
	}

	ci, err := Convert(cpus, nil)
	require.NoError(t, err)
	require.Equal(t, []pqos.CoreInfo{
		{LCore: 0, Socket: 3, L2ID: 0, L3ID: 3},
		{LCore: 1, Socket: 3, L2ID: 1, L3ID: 3},
	}, ci.Cores)
	require.False(t, ci.L3.Detected)
}

func TestConvertErrors(t *testing.T) {
	_, err := Convert(nil, nil)
	require.Error(t, err)

	_, err = Convert(&cpu.Info{}, nil)
	require.ErrorIs(t, err, pqos.ErrInvalidSnapshot)

	_, err = Convert(&cpu.Info{
		Processors: []*cpu.Processor{
			processor(0, "GenuineIntel", []int{0, 1}),
			processor(1, "GenuineIntel", []int{1}),
		},
	}, nil)
	require.Error(t, err)
}
