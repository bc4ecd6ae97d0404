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

package healthz

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	logger "github.com/containers/pqos-query/pkg/log"
)

var (
	// our logger instance
	log = logger.NewLogger("health-check")
)

// CheckFn reports the health of a component.
type CheckFn func() (status Status, details error)

// Status describes the health of a component or the whole.
type Status int

const (
	Healthy Status = iota
	Degraded
	NonFunctional
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case NonFunctional:
		return "non-functional"
	}
	return fmt.Sprintf("%%!(healthz:Bad-Status %d)", int(s))
}

// Checker is a set of named health checks.
type Checker struct {
	lock     sync.Mutex
	checkers map[string]CheckFn
	sorted   []string
}

// NewChecker creates a new, empty set of health checks.
func NewChecker() *Checker {
	return &Checker{
		checkers: map[string]CheckFn{},
	}
}

// Register registers the given health check function.
func (c *Checker) Register(name string, fn CheckFn) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, conflict := c.checkers[name]; conflict {
		return fmt.Errorf("checker %q already registered", name)
	}

	c.checkers[name] = fn
	c.sorted = append(c.sorted, name)
	sort.Strings(c.sorted)

	return nil
}

// Setup prepares the given HTTP request multiplexer for serving /healthz.
func (c *Checker) Setup(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", c.serve)
}

// serve serves a single HTTP request.
func (c *Checker) serve(w http.ResponseWriter, _ *http.Request) {
	status, details := c.Check()

	body := "ok"
	code := http.StatusOK
	if status != Healthy {
		code = http.StatusInternalServerError
		lines := []string{status.String()}
		for _, name := range sortedKeys(details) {
			lines = append(lines, fmt.Sprintf("%s: %v", name, details[name]))
		}
		body = strings.Join(lines, "\n") + "\n"
	}

	w.WriteHeader(code)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Error("failed to write response: %v", err)
	}
}

// Check runs all health checks and returns the worst status with the
// details of unhealthy components.
func (c *Checker) Check() (Status, map[string]error) {
	status := Healthy
	details := map[string]error{}

	c.lock.Lock()
	defer c.lock.Unlock()

	for _, name := range c.sorted {
		s, err := c.checkers[name]()
		if s == Healthy {
			continue
		}
		if s > status {
			status = s
		}
		if err != nil {
			details[name] = err
			log.Error("component %s reported %s: %v", name, s, err)
		}
	}

	return status, details
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
