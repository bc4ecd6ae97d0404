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

package metrics

// The metrics package provides a simple framework for exporting metrics.
// It is implemented as a set of thin wrappers around prometheus types.
// These help enforce metrics namespacing, allow grouping of collectors,
// and let the set of exported collectors be selected by glob patterns.
//
// Simple Usage
//
//	r := metrics.NewRegistry()
//	err := r.Register(
//	    "topology",
//	    collectors.NewSnapshotCollector(cpus, caps),
//	    metrics.WithGroup("pqos"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	g, err := r.NewGatherer(
//	    metrics.WithNamespace("pqos"),
//	    metrics.WithMetrics([]string{"*"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
