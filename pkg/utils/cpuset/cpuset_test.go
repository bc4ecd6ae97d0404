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

package cpuset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUintConversion(t *testing.T) {
	type testCase struct {
		name   string
		ids    []uint
		cpus   string
		sorted []uint
	}

	for _, tc := range []*testCase{
		{
			name:   "empty",
			ids:    nil,
			cpus:   "",
			sorted: []uint{},
		},
		{
			name:   "unsorted with duplicates",
			ids:    []uint{5, 1, 2, 1, 3},
			cpus:   "1-3,5",
			sorted: []uint{1, 2, 3, 5},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cset := FromUints(tc.ids)
			require.Equal(t, tc.cpus, cset.String())
			require.Equal(t, tc.sorted, ToUints(cset))
			require.True(t, cset.Equals(MustParse(tc.cpus)))
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	require.Panics(t, func() { MustParse("1-x") })
}
