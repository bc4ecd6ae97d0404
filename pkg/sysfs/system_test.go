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

package sysfs_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/containers/pqos-query/pkg/pqos"
	"github.com/containers/pqos-query/pkg/sysfs"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type (
	CoreInfo = pqos.CoreInfo
)

const (
	K = uint64(1024)
)

// writeTree creates the given files with the given content under root.
func writeTree(root string, files map[string]string) {
	for name, content := range files {
		path := filepath.Join(root, name)
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content+"\n"), 0o644)).To(Succeed())
	}
}

// cache returns the sysfs entries of a cache index for a CPU.
func cache(cpu, index, level int, kind string, id int, shared, size string, ways int) map[string]string {
	base := fmt.Sprintf("devices/system/cpu/cpu%d/cache/index%d/", cpu, index)
	files := map[string]string{
		base + "level":                   fmt.Sprint(level),
		base + "type":                    kind,
		base + "shared_cpu_list":         shared,
		base + "size":                    size,
		base + "ways_of_associativity":   fmt.Sprint(ways),
		base + "number_of_sets":          "1024",
		base + "coherency_line_size":     "64",
		base + "physical_line_partition": "1",
	}
	if id >= 0 {
		files[base+"id"] = fmt.Sprint(id)
	}
	return files
}

// twoSocketTree is an 8-CPU system with two sockets, a NUMA node and an
// L3 per socket, L2 shared by CPU pairs, and CPU #7 offline.
func twoSocketTree() map[string]string {
	files := map[string]string{
		"devices/system/cpu/online": "0-6",
	}
	for cpu := 0; cpu < 8; cpu++ {
		socket := cpu / 4
		base := fmt.Sprintf("devices/system/cpu/cpu%d/", cpu)
		files[base+"topology/physical_package_id"] = fmt.Sprint(socket)
		files[base+fmt.Sprintf("node%d/cpulist", socket)] = fmt.Sprintf("%d-%d", socket*4, socket*4+3)

		pair := fmt.Sprintf("%d-%d", cpu&^1, cpu|1)
		pkg := fmt.Sprintf("%d-%d", socket*4, socket*4+3)
		for name, content := range cache(cpu, 0, 1, "Data", cpu/2, pair, "48K", 12) {
			files[name] = content
		}
		for name, content := range cache(cpu, 1, 1, "Instruction", cpu/2, pair, "32K", 8) {
			files[name] = content
		}
		for name, content := range cache(cpu, 2, 2, "Unified", cpu/2, pair, "1280K", 10) {
			files[name] = content
		}
		for name, content := range cache(cpu, 3, 3, "Unified", socket, pkg, "18432K", 12) {
			files[name] = content
		}
	}
	return files
}

// noIDTree is a 4-CPU single socket system without L3 and without
// cache id entries.
func noIDTree() map[string]string {
	files := map[string]string{}
	for cpu := 0; cpu < 4; cpu++ {
		base := fmt.Sprintf("devices/system/cpu/cpu%d/", cpu)
		files[base+"topology/physical_package_id"] = "0"
		shared := fmt.Sprintf("%d-%d", cpu&^1, cpu|1)
		for name, content := range cache(cpu, 0, 2, "Unified", -1, shared, "2M", 16) {
			files[name] = content
		}
	}
	return files
}

// mixedTree is a 6-CPU single socket system where only CPUs #0 and #1
// have a proper L2 cache id, CPUs #2 and #3 lack the cache id entry and
// CPUs #4 and #5 have no L2 cache at all.
func mixedTree() map[string]string {
	files := map[string]string{}
	for cpu := 0; cpu < 6; cpu++ {
		base := fmt.Sprintf("devices/system/cpu/cpu%d/", cpu)
		files[base+"topology/physical_package_id"] = "0"
	}
	for cpu := 0; cpu < 4; cpu++ {
		id := 2
		if cpu >= 2 {
			id = -1
		}
		shared := fmt.Sprintf("%d-%d", cpu&^1, cpu|1)
		for name, content := range cache(cpu, 0, 2, "Unified", id, shared, "2M", 16) {
			files[name] = content
		}
	}
	return files
}

var _ = Describe("sysfs CPU topology discovery", func() {
	var (
		root string
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
	})

	It("discovers a two socket system", func() {
		writeTree(root, twoSocketTree())

		ci, err := sysfs.DiscoverCPUInfoAt(root)
		Expect(err).ToNot(HaveOccurred())
		Expect(ci.Cores).To(Equal([]CoreInfo{
			{LCore: 0, Socket: 0, L2ID: 0, L3ID: 0, NUMA: 0},
			{LCore: 1, Socket: 0, L2ID: 0, L3ID: 0, NUMA: 0},
			{LCore: 2, Socket: 0, L2ID: 1, L3ID: 0, NUMA: 0},
			{LCore: 3, Socket: 0, L2ID: 1, L3ID: 0, NUMA: 0},
			{LCore: 4, Socket: 1, L2ID: 2, L3ID: 1, NUMA: 1},
			{LCore: 5, Socket: 1, L2ID: 2, L3ID: 1, NUMA: 1},
			{LCore: 6, Socket: 1, L2ID: 3, L3ID: 1, NUMA: 1},
		}))

		Expect(ci.L2.Detected).To(BeTrue())
		Expect(ci.L2.TotalSize).To(Equal(1280 * K))
		Expect(ci.L2.NumWays).To(Equal(uint(10)))
		Expect(ci.L2.WaySize).To(Equal(128 * K))
		Expect(ci.L3.Detected).To(BeTrue())
		Expect(ci.L3.TotalSize).To(Equal(18432 * K))
		Expect(ci.L3.WaySize).To(Equal(1536 * K))
		Expect(ci.L3.LineSize).To(Equal(uint(64)))

		sockets, err := ci.NumSockets()
		Expect(err).ToNot(HaveOccurred())
		Expect(sockets).To(Equal(uint(2)))
	})

	It("falls back to shared CPUs and sockets for missing cache details", func() {
		writeTree(root, noIDTree())

		ci, err := sysfs.DiscoverCPUInfoAt(root)
		Expect(err).ToNot(HaveOccurred())
		Expect(ci.Cores).To(Equal([]CoreInfo{
			{LCore: 0, Socket: 0, L2ID: 0, L3ID: 0},
			{LCore: 1, Socket: 0, L2ID: 0, L3ID: 0},
			{LCore: 2, Socket: 0, L2ID: 2, L3ID: 0},
			{LCore: 3, Socket: 0, L2ID: 2, L3ID: 0},
		}))
		Expect(ci.L2.TotalSize).To(Equal(2048 * K))
		Expect(ci.L3.Detected).To(BeFalse())
	})

	It("keeps synthetic cluster IDs apart from real ones", func() {
		writeTree(root, mixedTree())

		ci, err := sysfs.DiscoverCPUInfoAt(root)
		Expect(err).ToNot(HaveOccurred())
		Expect(ci.Cores).To(Equal([]CoreInfo{
			{LCore: 0, Socket: 0, L2ID: 2, L3ID: 0},
			{LCore: 1, Socket: 0, L2ID: 2, L3ID: 0},
			{LCore: 2, Socket: 0, L2ID: 6, L3ID: 0},
			{LCore: 3, Socket: 0, L2ID: 6, L3ID: 0},
			{LCore: 4, Socket: 0, L2ID: 7, L3ID: 0},
			{LCore: 5, Socket: 0, L2ID: 8, L3ID: 0},
		}))

		l2, err := ci.NumL2Clusters()
		Expect(err).ToNot(HaveOccurred())
		Expect(l2).To(Equal(uint(4)))
	})

	It("uses the sys root", func() {
		writeTree(filepath.Join(root, "sys"), noIDTree())

		sysfs.SetSysRoot(root)
		defer sysfs.SetSysRoot("")

		ci, err := sysfs.DiscoverCPUInfo()
		Expect(err).ToNot(HaveOccurred())
		Expect(ci.NumCores()).To(Equal(4))
	})

	It("fails without CPUs", func() {
		Expect(os.MkdirAll(filepath.Join(root, "devices/system/cpu"), 0o755)).To(Succeed())

		_, err := sysfs.DiscoverCPUInfoAt(root)
		Expect(err).To(HaveOccurred())
	})

	It("fails without a physical package ID", func() {
		files := noIDTree()
		delete(files, "devices/system/cpu/cpu2/topology/physical_package_id")
		writeTree(root, files)

		_, err := sysfs.DiscoverCPUInfoAt(root)
		Expect(err).To(HaveOccurred())
	})

	It("fails with an unknown cache type", func() {
		files := noIDTree()
		files["devices/system/cpu/cpu1/cache/index0/type"] = "Mystery"
		writeTree(root, files)

		_, err := sysfs.DiscoverCPUInfoAt(root)
		Expect(err).To(HaveOccurred())
	})
})

var _ = DescribeTable("cache size parsing",
	func(size string, expected uint64, fails bool) {
		root := GinkgoT().TempDir()
		files := noIDTree()
		for cpu := 0; cpu < 4; cpu++ {
			files[fmt.Sprintf("devices/system/cpu/cpu%d/cache/index0/size", cpu)] = size
		}
		writeTree(root, files)

		ci, err := sysfs.DiscoverCPUInfoAt(root)
		if fails {
			Expect(err).To(HaveOccurred())
			return
		}
		Expect(err).ToNot(HaveOccurred())
		Expect(ci.L2.TotalSize).To(Equal(expected))
	},
	Entry("kilobytes", "512K", 512*K, false),
	Entry("megabytes", "2M", 2048*K, false),
	Entry("gigabytes", "1G", 1024*1024*K, false),
	Entry("bytes", "4096", uint64(4096), false),
	Entry("garbage", "lots", uint64(0), true),
)
