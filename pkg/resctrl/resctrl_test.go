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

package resctrl_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/containers/pqos-query/pkg/pqos"
	"github.com/containers/pqos-query/pkg/resctrl"
)

const (
	cpuinfoCDP = "processor\t: 0\nvendor_id\t: GenuineIntel\nflags\t\t: fpu cat_l3 cdp_l3 cat_l2 mba\n\nprocessor\t: 1\nflags\t\t: fpu\n"
	mountsMBps = "sysfs /sys sysfs rw 0 0\nresctrl /sys/fs/resctrl resctrl rw,relatime,mba_MBps 0 0\n"
	mountsNone = "resctrl /sys/fs/resctrl resctrl rw,relatime 0 0\n"
)

// writeTree creates the given files with the given content under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func fullTree() map[string]string {
	return map[string]string{
		"resctrl/info/L3/num_closids":      "16\n",
		"resctrl/info/L3/cbm_mask":         "7ff\n",
		"resctrl/info/L3/shareable_bits":   "600\n",
		"resctrl/info/L2/num_closids":      "8\n",
		"resctrl/info/L2/cbm_mask":         "ffff\n",
		"resctrl/info/L2/shareable_bits":   "0\n",
		"resctrl/info/MB/num_closids":      "8\n",
		"resctrl/info/MB/min_bandwidth":    "10\n",
		"resctrl/info/MB/bandwidth_gran":   "10\n",
		"resctrl/info/MB/delay_linear":     "1\n",
		"resctrl/info/L3_MON/num_rmids":    "224\n",
		"resctrl/info/L3_MON/mon_features": "llc_occupancy\nmbm_total_bytes\nmbm_local_bytes\n",
		"proc/cpuinfo":                     cpuinfoCDP,
		"proc/mounts":                      mountsNone,
	}
}

func cpus() *pqos.CPUInfo {
	return &pqos.CPUInfo{
		L2: pqos.CacheInfo{Detected: true, NumWays: 16, TotalSize: 2 << 20, WaySize: 128 << 10},
		L3: pqos.CacheInfo{Detected: true, NumWays: 11, TotalSize: 11 << 20, WaySize: 1 << 20},
		Cores: []pqos.CoreInfo{
			{LCore: 0},
		},
	}
}

func TestDiscoverCapabilities(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, fullTree())

	caps, err := resctrl.DiscoverCapabilitiesAt(filepath.Join(root, "resctrl"), filepath.Join(root, "proc"), cpus())
	require.NoError(t, err)

	l3, err := caps.L3CA()
	require.NoError(t, err)
	require.Equal(t, &pqos.L3CACapability{
		NumClasses:    16,
		NumWays:       11,
		WaySize:       1 << 20,
		WayContention: 0x600,
		CDP:           true,
		CDPOn:         false,
	}, l3)

	l2, err := caps.L2CA()
	require.NoError(t, err)
	require.Equal(t, uint(16), l2.NumWays)
	require.False(t, l2.CDP)

	mba, err := caps.MBA()
	require.NoError(t, err)
	require.Equal(t, &pqos.MBACapability{
		NumClasses:   8,
		ThrottleMax:  90,
		ThrottleStep: 10,
		IsLinear:     true,
		Ctrl:         true,
		CtrlOn:       false,
	}, mba)

	mon, err := caps.Mon()
	require.NoError(t, err)
	require.Equal(t, uint(224), mon.MaxRMID)
	require.Equal(t, uint64(11<<20), mon.L3Size)

	for _, e := range []pqos.MonEvent{
		pqos.MonEventL3Occupancy,
		pqos.MonEventLocalMemBW,
		pqos.MonEventTotalMemBW,
		pqos.MonEventRemoteMemBW,
	} {
		info, err := caps.Event(e)
		require.NoError(t, err, "event %s", e)
		require.Equal(t, uint(224), info.MaxRMID)
	}
	_, err = caps.Event(pqos.PerfEventIPC)
	require.ErrorIs(t, err, pqos.ErrNotFound)
}

func TestDiscoverCDPAndMBAController(t *testing.T) {
	files := fullTree()
	for _, entry := range []string{"num_closids", "cbm_mask", "shareable_bits"} {
		files["resctrl/info/L3CODE/"+entry] = files["resctrl/info/L3/"+entry]
		files["resctrl/info/L3DATA/"+entry] = files["resctrl/info/L3/"+entry]
		delete(files, "resctrl/info/L3/"+entry)
	}
	files["resctrl/info/L3CODE/num_closids"] = "8\n"
	files["proc/cpuinfo"] = "processor\t: 0\nflags\t\t: fpu\n"
	files["proc/mounts"] = mountsMBps

	root := t.TempDir()
	writeTree(t, root, files)

	caps, err := resctrl.DiscoverCapabilitiesAt(filepath.Join(root, "resctrl"), filepath.Join(root, "proc"), cpus())
	require.NoError(t, err)

	supported, enabled, err := caps.CDP(pqos.CapTypeL3CA)
	require.NoError(t, err)
	require.True(t, supported)
	require.True(t, enabled)

	count, err := caps.ClassCount(pqos.CapTypeL3CA)
	require.NoError(t, err)
	require.Equal(t, uint(8), count)

	mba, err := caps.MBA()
	require.NoError(t, err)
	require.True(t, mba.Ctrl)
	require.True(t, mba.CtrlOn)
}

func TestDiscoverPartial(t *testing.T) {
	type testCase struct {
		name    string
		files   map[string]string
		present []pqos.CapType
		invalid bool
	}

	for _, tc := range []*testCase{
		{
			name: "nothing",
			files: map[string]string{
				"resctrl/tasks": "",
			},
		},
		{
			name: "L3 allocation only",
			files: map[string]string{
				"resctrl/info/L3/num_closids": "4\n",
				"resctrl/info/L3/cbm_mask":    "fffff\n",
			},
			present: []pqos.CapType{pqos.CapTypeL3CA},
		},
		{
			name: "monitoring without bandwidth",
			files: map[string]string{
				"resctrl/info/L3_MON/num_rmids":    "128\n",
				"resctrl/info/L3_MON/mon_features": "llc_occupancy\n",
			},
			present: []pqos.CapType{pqos.CapTypeMon},
		},
		{
			name: "corrupt class count",
			files: map[string]string{
				"resctrl/info/L3/num_closids": "many\n",
				"resctrl/info/L3/cbm_mask":    "fffff\n",
			},
			invalid: true,
		},
		{
			name: "corrupt mask",
			files: map[string]string{
				"resctrl/info/L2/num_closids": "4\n",
				"resctrl/info/L2/cbm_mask":    "xyz\n",
			},
			invalid: true,
		},
		{
			name: "no classes",
			files: map[string]string{
				"resctrl/info/L3/num_closids": "0\n",
				"resctrl/info/L3/cbm_mask":    "fffff\n",
			},
			invalid: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, tc.files)

			caps, err := resctrl.DiscoverCapabilitiesAt(filepath.Join(root, "resctrl"), filepath.Join(root, "proc"), nil)
			if tc.invalid {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, caps.Items, len(tc.present))
			for _, capType := range tc.present {
				require.True(t, caps.Has(capType), "%s", capType)
			}
		})
	}
}

func TestDiscoverUnmounted(t *testing.T) {
	resctrl.SetPrefix(t.TempDir())
	defer resctrl.SetPrefix("/")

	caps, err := resctrl.DiscoverCapabilities(cpus())
	require.NoError(t, err)
	require.Empty(t, caps.Items)
}
