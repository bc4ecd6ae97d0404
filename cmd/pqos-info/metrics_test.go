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

package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/containers/pqos-query/pkg/pqos"
	"github.com/containers/pqos-query/pkg/snapshot"
)

func testSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		CPU: &pqos.CPUInfo{
			Cores: []pqos.CoreInfo{
				{LCore: 0, Socket: 0, L2ID: 0, L3ID: 0},
				{LCore: 1, Socket: 0, L2ID: 0, L3ID: 0},
				{LCore: 2, Socket: 1, L2ID: 1, L3ID: 1},
				{LCore: 3, Socket: 1, L2ID: 1, L3ID: 1},
			},
		},
		Capabilities: pqos.NewCapabilities(
			&pqos.L3CACapability{NumClasses: 4},
		),
	}
}

func httpGet(t *testing.T, h http.Handler, path string) (int, string) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	return rec.Code, string(body)
}

func TestGlobList(t *testing.T) {
	var l globList
	require.NoError(t, l.Set("system/*, standard/golang,"))
	require.NoError(t, l.Set("buildinfo"))
	require.Equal(t, globList{"system/*", "standard/golang", "buildinfo"}, l)
	require.Equal(t, "system/*,standard/golang,buildinfo", l.String())
}

func TestMetricsSelection(t *testing.T) {
	type testCase struct {
		name    string
		metrics globList
		present []string
		absent  []string
		invalid bool
	}
	for _, tc := range []*testCase{
		{
			name:    "everything by default",
			present: []string{"pqos_logical_cores 4", "go_goroutines"},
		},
		{
			name:    "snapshot only",
			metrics: globList{"system/snapshot"},
			present: []string{"pqos_logical_cores 4", `pqos_allocation_classes{capability="l3ca"} 4`},
			absent:  []string{"go_goroutines"},
		},
		{
			name:    "standard group",
			metrics: globList{"standard/*"},
			present: []string{"go_goroutines"},
			absent:  []string{"pqos_logical_cores"},
		},
		{
			name:    "unmatched glob",
			metrics: globList{"system/snapshot", "nosuch"},
			invalid: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opt := &options{namespace: "pqos", metrics: tc.metrics}
			h, err := metricsHandler(opt, testSnapshot())
			if tc.invalid {
				require.Error(t, err)
				require.Contains(t, err.Error(), "system/snapshot")
				return
			}
			require.NoError(t, err)

			code, body := httpGet(t, h, "/metrics")
			require.Equal(t, http.StatusOK, code)
			for _, s := range tc.present {
				require.Contains(t, body, s)
			}
			for _, s := range tc.absent {
				require.NotContains(t, body, s)
			}
		})
	}
}

func TestMetricsHealth(t *testing.T) {
	h, err := metricsHandler(&options{namespace: "pqos"}, testSnapshot())
	require.NoError(t, err)

	code, body := httpGet(t, h, "/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)

	broken := testSnapshot()
	broken.CPU.Cores = nil
	h, err = metricsHandler(&options{namespace: "pqos"}, broken)
	require.NoError(t, err)

	code, _ = httpGet(t, h, "/healthz")
	require.Equal(t, http.StatusInternalServerError, code)
}
