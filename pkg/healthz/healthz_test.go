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

package healthz_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/containers/pqos-query/pkg/healthz"
)

func get(t *testing.T, c *healthz.Checker) (int, string) {
	mux := http.NewServeMux()
	c.Setup(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	return rec.Code, string(body)
}

func TestHealthy(t *testing.T) {
	c := healthz.NewChecker()
	require.NoError(t, c.Register("snapshot", func() (healthz.Status, error) {
		return healthz.Healthy, nil
	}))

	code, body := get(t, c)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)
}

func TestUnhealthy(t *testing.T) {
	c := healthz.NewChecker()
	require.NoError(t, c.Register("b", func() (healthz.Status, error) {
		return healthz.Degraded, errors.New("stale")
	}))
	require.NoError(t, c.Register("a", func() (healthz.Status, error) {
		return healthz.NonFunctional, errors.New("broken")
	}))
	require.Error(t, c.Register("a", nil))

	status, details := c.Check()
	require.Equal(t, healthz.NonFunctional, status)
	require.Len(t, details, 2)

	code, body := get(t, c)
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "non-functional\na: broken\nb: stale\n", body)
}
