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

package collectors

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/containers/pqos-query/pkg/pqos"
)

// SnapshotCollector exports CPU topology and resource control capability
// details of a system snapshot. All values are derived with the query API
// of the snapshots.
type SnapshotCollector struct {
	cpus *pqos.CPUInfo
	caps *pqos.Capabilities

	groups       *prometheus.Desc
	cores        *prometheus.Desc
	socketCores  *prometheus.Desc
	supported    *prometheus.Desc
	classes      *prometheus.Desc
	cdpSupported *prometheus.Desc
	cdpEnabled   *prometheus.Desc
	events       *prometheus.Desc
}

var _ prometheus.Collector = &SnapshotCollector{}

// NewSnapshotCollector creates a collector for the given snapshots. Either
// one may be nil, in which case its metrics are omitted.
func NewSnapshotCollector(cpus *pqos.CPUInfo, caps *pqos.Capabilities) *SnapshotCollector {
	return &SnapshotCollector{
		cpus: cpus,
		caps: caps,
		groups: prometheus.NewDesc("topology_groups",
			"Number of distinct topology objects of a kind.",
			[]string{"object"}, nil),
		cores: prometheus.NewDesc("logical_cores",
			"Number of logical cores.",
			nil, nil),
		socketCores: prometheus.NewDesc("socket_cores",
			"Number of logical cores on a socket.",
			[]string{"socket"}, nil),
		supported: prometheus.NewDesc("capability_supported",
			"Whether a resource control capability is supported.",
			[]string{"capability"}, nil),
		classes: prometheus.NewDesc("allocation_classes",
			"Number of classes of service of an allocation capability.",
			[]string{"capability"}, nil),
		cdpSupported: prometheus.NewDesc("cdp_supported",
			"Whether code and data prioritization is supported.",
			[]string{"capability"}, nil),
		cdpEnabled: prometheus.NewDesc("cdp_enabled",
			"Whether code and data prioritization is enabled.",
			[]string{"capability"}, nil),
		events: prometheus.NewDesc("monitoring_event_supported",
			"Whether a monitoring event is supported.",
			[]string{"event"}, nil),
	}
}

// Describe implements the prometheus.Collector interface.
func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.groups, c.cores, c.socketCores, c.supported,
		c.classes, c.cdpSupported, c.cdpEnabled, c.events,
	} {
		ch <- d
	}
}

// Collect implements the prometheus.Collector interface.
func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectTopology(ch)
	c.collectCapabilities(ch)
}

func (c *SnapshotCollector) collectTopology(ch chan<- prometheus.Metric) {
	if c.cpus == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.cores, prometheus.GaugeValue, float64(c.cpus.NumCores()))

	for _, o := range pqos.TopologyObjects() {
		count, err := c.cpus.CountGroups(o)
		if err != nil {
			log.Debug("no %s count: %v", o, err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.groups, prometheus.GaugeValue, float64(count), o.String())
	}

	sockets, err := c.cpus.SocketIDs()
	if err != nil {
		return
	}
	for _, socket := range sockets {
		cores, err := c.cpus.CoresForSocket(socket)
		if err != nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.socketCores, prometheus.GaugeValue,
			float64(len(cores)), strconv.FormatUint(uint64(socket), 10))
	}
}

func (c *SnapshotCollector) collectCapabilities(ch chan<- prometheus.Metric) {
	if c.caps == nil {
		return
	}

	for _, t := range pqos.CapTypes() {
		ch <- prometheus.MustNewConstMetric(c.supported, prometheus.GaugeValue,
			boolValue(c.caps.Has(t)), t.String())

		if t.IsAllocation() {
			if count, err := c.caps.ClassCount(t); err == nil {
				ch <- prometheus.MustNewConstMetric(c.classes, prometheus.GaugeValue,
					float64(count), t.String())
			}
		}

		if t == pqos.CapTypeL3CA || t == pqos.CapTypeL2CA {
			if supported, enabled, err := c.caps.CDP(t); err == nil {
				ch <- prometheus.MustNewConstMetric(c.cdpSupported, prometheus.GaugeValue,
					boolValue(supported), t.String())
				ch <- prometheus.MustNewConstMetric(c.cdpEnabled, prometheus.GaugeValue,
					boolValue(enabled), t.String())
			}
		}
	}

	for _, e := range pqos.MonEvents() {
		_, err := c.caps.Event(e)
		if errors.Is(err, pqos.ErrCapabilityAbsent) {
			return
		}
		ch <- prometheus.MustNewConstMetric(c.events, prometheus.GaugeValue,
			boolValue(err == nil), e.String())
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
