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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/containers/pqos-query/pkg/utils/cpuset"
)

// readSysfsEntry reads and parses a sysfs entry into the given pointer.
// Supported targets are *string, *int, *uint, *uint64 and *cpuset.CPUSet.
func readSysfsEntry(base, entry string, ptr interface{}) (string, error) {
	path := filepath.Join(base, entry)

	blob, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read sysfs entry %s", path)
	}

	value := strings.TrimSpace(string(blob))
	if ptr == nil {
		return value, nil
	}

	switch p := ptr.(type) {
	case *string:
		*p = value
	case *int:
		*p, err = strconv.Atoi(value)
	case *uint:
		var v uint64
		v, err = strconv.ParseUint(value, 10, 0)
		*p = uint(v)
	case *uint64:
		*p, err = strconv.ParseUint(value, 10, 64)
	case *cpuset.CPUSet:
		*p, err = cpuset.Parse(value)
	default:
		return "", sysfsError(path, "unsupported sysfs entry type %T", ptr)
	}

	if err != nil {
		return "", errors.Wrapf(err, "invalid sysfs entry %s", path)
	}

	return value, nil
}

// parseCacheSize parses a cache size entry like 48K or 36608K.
func parseCacheSize(size string) (uint64, error) {
	if size == "" {
		return 0, errors.New("empty cache size")
	}

	unit := map[byte]uint64{'K': 1 << 10, 'M': 1 << 20, 'G': 1 << 30}
	mult := uint64(1)
	if u, ok := unit[size[len(size)-1]]; ok {
		mult = u
		size = size[:len(size)-1]
	}

	val, err := strconv.ParseUint(size, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "can't parse cache size %q", size)
	}

	return val * mult, nil
}

// getEnumeratedID returns the ID suffix of an enumerated sysfs entry.
func getEnumeratedID(path string) int {
	name := filepath.Base(path)
	idx := strings.LastIndexFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	id, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return -1
	}
	return id
}

// sysfsError returns a formatted error for the given sysfs path.
func sysfsError(path, format string, args ...interface{}) error {
	return errors.Errorf("sysfs: %s: "+format, append([]interface{}{path}, args...)...)
}
