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

package resctrl

import (
	"bufio"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	grcpath "github.com/intel/goresctrl/pkg/path"
	"github.com/pkg/errors"

	logger "github.com/containers/pqos-query/pkg/log"
	"github.com/containers/pqos-query/pkg/pqos"
)

const (
	// resctrlPath is the default resctrl mount point relative to the host root.
	resctrlPath = "sys/fs/resctrl"
	// procPath is the proc filesystem relative to the host root.
	procPath = "proc"
	// mbaMBpsOption is the mount option enabling the MBA software controller.
	mbaMBpsOption = "mba_MBps"
)

var (
	// Our logger instance.
	log = logger.NewLogger("resctrl")
	// SetPrefix sets the host root directory for discovery.
	SetPrefix = grcpath.SetPrefix
)

// DiscoverCapabilities discovers the resource control capabilities of the
// running system. If resctrl is not mounted an empty capability snapshot is
// returned. Cache way sizes and the L3 size are taken from cpus, if given.
func DiscoverCapabilities(cpus *pqos.CPUInfo) (*pqos.Capabilities, error) {
	root := grcpath.Path(resctrlPath)

	mounted, err := isResctrlMount(root)
	if err != nil {
		return nil, err
	}
	if !mounted {
		log.Info("resctrl filesystem not mounted at %s, no capabilities", root)
		return pqos.NewCapabilities(), nil
	}

	return DiscoverCapabilitiesAt(root, grcpath.Path(procPath), cpus)
}

// DiscoverCapabilitiesAt discovers resource control capabilities from the
// resctrl filesystem at root and the proc filesystem at proc.
func DiscoverCapabilitiesAt(root, proc string, cpus *pqos.CPUInfo) (*pqos.Capabilities, error) {
	flags, err := readCPUFlags(filepath.Join(proc, "cpuinfo"))
	if err != nil {
		log.Warn("failed to read CPU flags, assuming no CDP support: %v", err)
		flags = map[string]bool{}
	}

	mbaMBps, err := hasMountOption(filepath.Join(proc, "mounts"), root, mbaMBpsOption)
	if err != nil {
		log.Warn("failed to read resctrl mount options: %v", err)
	}

	var (
		info  = filepath.Join(root, "info")
		items []pqos.Capability
		cache = cacheDetails(cpus)
	)

	mon, err := discoverMon(info, cache[3].TotalSize)
	if err != nil {
		return nil, err
	}
	if mon != nil {
		items = append(items, mon)
	}

	l3, err := discoverCache(info, "L3", flags["cdp_l3"], cache[3])
	if err != nil {
		return nil, err
	}
	if l3 != nil {
		items = append(items, &pqos.L3CACapability{
			NumClasses:    l3.numClasses,
			NumWays:       l3.numWays,
			WaySize:       l3.waySize,
			WayContention: l3.contention,
			CDP:           l3.cdp,
			CDPOn:         l3.cdpOn,
		})
	}

	l2, err := discoverCache(info, "L2", flags["cdp_l2"], cache[2])
	if err != nil {
		return nil, err
	}
	if l2 != nil {
		items = append(items, &pqos.L2CACapability{
			NumClasses:    l2.numClasses,
			NumWays:       l2.numWays,
			WaySize:       l2.waySize,
			WayContention: l2.contention,
			CDP:           l2.cdp,
			CDPOn:         l2.cdpOn,
		})
	}

	mba, err := discoverMBA(info, mon, mbaMBps)
	if err != nil {
		return nil, err
	}
	if mba != nil {
		items = append(items, mba)
	}

	caps := pqos.NewCapabilities(items...)
	if err := caps.Validate(); err != nil {
		return nil, err
	}

	for _, item := range caps.Items {
		log.Debug("discovered capability %s: %+v", item.Type(), item)
	}

	return caps, nil
}

// cacheDetails returns the L2 and L3 cache details of cpus by level.
func cacheDetails(cpus *pqos.CPUInfo) map[int]pqos.CacheInfo {
	if cpus == nil {
		return map[int]pqos.CacheInfo{}
	}
	return map[int]pqos.CacheInfo{
		2: cpus.L2,
		3: cpus.L3,
	}
}

// cacheAllocation is the discovered cache allocation details of one level.
type cacheAllocation struct {
	numClasses uint
	numWays    uint
	waySize    uint64
	contention uint64
	cdp        bool
	cdpOn      bool
}

func discoverCache(info, level string, cdpFlag bool, cache pqos.CacheInfo) (*cacheAllocation, error) {
	dir := filepath.Join(info, level)
	c := &cacheAllocation{cdp: cdpFlag}

	if !dirExists(dir) {
		code := filepath.Join(info, level+"CODE")
		if !dirExists(code) {
			return nil, nil
		}
		dir = code
		c.cdp = true
		c.cdpOn = true
	}

	if err := readEntry(dir, "num_closids", &c.numClasses); err != nil {
		return nil, err
	}

	mask := uint64(0)
	if err := readHexEntry(dir, "cbm_mask", &mask); err != nil {
		return nil, err
	}
	c.numWays = uint(bits.OnesCount64(mask))

	if err := readHexEntry(dir, "shareable_bits", &c.contention); err != nil {
		log.Debug("%s: no shareable bits: %v", dir, err)
	}

	c.waySize = cache.WaySize
	if c.waySize == 0 && cache.TotalSize > 0 && c.numWays > 0 {
		c.waySize = cache.TotalSize / uint64(c.numWays)
	}

	return c, nil
}

func discoverMon(info string, l3Size uint64) (*pqos.MonCapability, error) {
	dir := filepath.Join(info, "L3_MON")
	if !dirExists(dir) {
		return nil, nil
	}

	mon := &pqos.MonCapability{L3Size: l3Size}
	if err := readEntry(dir, "num_rmids", &mon.MaxRMID); err != nil {
		return nil, err
	}

	features := ""
	if err := readEntry(dir, "mon_features", &features); err != nil {
		return nil, err
	}

	events := pqos.MonEvent(0)
	for _, feature := range strings.Fields(features) {
		switch feature {
		case "llc_occupancy":
			events |= pqos.MonEventL3Occupancy
		case "mbm_total_bytes":
			events |= pqos.MonEventTotalMemBW
		case "mbm_local_bytes":
			events |= pqos.MonEventLocalMemBW
		default:
			log.Debug("ignoring unknown monitoring feature %q", feature)
		}
	}
	if events&pqos.MonEventTotalMemBW != 0 && events&pqos.MonEventLocalMemBW != 0 {
		events |= pqos.MonEventRemoteMemBW
	}

	for _, e := range pqos.MonEvents() {
		if events&e == 0 {
			continue
		}
		mon.Events = append(mon.Events, pqos.MonEventInfo{
			Type:        e,
			MaxRMID:     mon.MaxRMID,
			ScaleFactor: 1,
		})
	}

	return mon, nil
}

func discoverMBA(info string, mon *pqos.MonCapability, mbaMBps bool) (*pqos.MBACapability, error) {
	dir := filepath.Join(info, "MB")
	if !dirExists(dir) {
		return nil, nil
	}

	mba := &pqos.MBACapability{}
	if err := readEntry(dir, "num_closids", &mba.NumClasses); err != nil {
		return nil, err
	}

	minBW := uint(0)
	if err := readEntry(dir, "min_bandwidth", &minBW); err != nil {
		return nil, err
	}
	if minBW < 100 {
		mba.ThrottleMax = 100 - minBW
	}
	if err := readEntry(dir, "bandwidth_gran", &mba.ThrottleStep); err != nil {
		return nil, err
	}

	linear := ""
	if err := readEntry(dir, "delay_linear", &linear); err == nil {
		mba.IsLinear = linear == "1"
	}

	if mon != nil {
		if _, err := pqos.NewCapabilities(mon).Event(pqos.MonEventLocalMemBW); err == nil {
			mba.Ctrl = true
		}
	}
	mba.CtrlOn = mbaMBps
	if mba.CtrlOn {
		mba.Ctrl = true
	}

	return mba, nil
}

// readEntry reads a resctrl info entry into a *string or *uint.
func readEntry(dir, entry string, ptr interface{}) error {
	path := filepath.Join(dir, entry)
	blob, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "resctrl: failed to read %s", path)
	}
	value := strings.TrimSpace(string(blob))

	switch p := ptr.(type) {
	case *string:
		*p = value
	case *uint:
		v, err := strconv.ParseUint(value, 10, 0)
		if err != nil {
			return errors.Wrapf(err, "resctrl: invalid entry %s", path)
		}
		*p = uint(v)
	default:
		return errors.Errorf("resctrl: %s: unsupported entry type %T", path, ptr)
	}

	return nil
}

// readHexEntry reads a hexadecimal resctrl info entry.
func readHexEntry(dir, entry string, ptr *uint64) error {
	value := ""
	if err := readEntry(dir, entry, &value); err != nil {
		return err
	}
	v, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return errors.Wrapf(err, "resctrl: invalid hex entry %s", filepath.Join(dir, entry))
	}
	*ptr = v
	return nil
}

// readCPUFlags returns the CPU flags of the first processor in cpuinfo.
func readCPUFlags(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "resctrl: failed to read CPU flags")
	}
	defer f.Close()

	flags := map[string]bool{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || strings.TrimSpace(key) != "flags" {
			continue
		}
		for _, flag := range strings.Fields(value) {
			flags[flag] = true
		}
		return flags, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "resctrl: failed to parse %s", path)
	}

	return flags, nil
}

// hasMountOption checks if the filesystem mounted at root has the given option.
func hasMountOption(path, root, option string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrap(err, "resctrl: failed to read mounts")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[2] != "resctrl" {
			continue
		}
		if fields[1] != "/"+resctrlPath && filepath.Clean(fields[1]) != filepath.Clean(root) {
			continue
		}
		for _, opt := range strings.Split(fields[3], ",") {
			if opt == option {
				return true, nil
			}
		}
		return false, nil
	}

	return false, scanner.Err()
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
