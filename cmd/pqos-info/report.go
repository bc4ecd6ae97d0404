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
	"errors"

	"github.com/containers/pqos-query/pkg/pqos"
	"github.com/containers/pqos-query/pkg/snapshot"
	"github.com/containers/pqos-query/pkg/utils/cpuset"
)

// Report is a summary of the queries answered by a snapshot.
type Report struct {
	Vendor       string           `json:"vendor,omitempty"`
	Cores        []CoreReport     `json:"cores"`
	Sockets      []GroupReport    `json:"sockets"`
	L2Clusters   []GroupReport    `json:"l2Clusters"`
	L3Clusters   []GroupReport    `json:"l3Clusters"`
	Capabilities CapabilityReport `json:"capabilities"`
}

// CoreReport describes a single logical core.
type CoreReport struct {
	LCore   uint `json:"lcore"`
	Socket  uint `json:"socket"`
	L2ID    uint `json:"l2id"`
	Cluster uint `json:"cluster"`
}

// GroupReport describes a topology object and its cores.
type GroupReport struct {
	ID    uint   `json:"id"`
	Cores string `json:"cores"`
	First *uint  `json:"firstCore,omitempty"`
}

// CapabilityReport describes the resource control capabilities.
type CapabilityReport struct {
	Supported []pqos.CapType     `json:"supported"`
	Classes   map[string]uint    `json:"classes,omitempty"`
	CDP       map[string]CDPInfo `json:"cdp,omitempty"`
	Events    []pqos.MonEvent    `json:"events,omitempty"`
}

// CDPInfo is the code and data prioritization state of a cache.
type CDPInfo struct {
	Supported bool `json:"supported"`
	Enabled   bool `json:"enabled"`
}

// buildReport answers all topology and capability queries for a snapshot.
func buildReport(s *snapshot.Snapshot) (*Report, error) {
	cpus := s.CPU
	r := &Report{
		Vendor: cpus.Vendor,
	}

	for _, c := range cpus.Cores {
		cr := CoreReport{LCore: c.LCore}
		var err error
		if cr.Socket, err = cpus.SocketID(c.LCore); err != nil {
			return nil, err
		}
		if cr.L2ID, err = cpus.L2ID(c.LCore); err != nil {
			return nil, err
		}
		if cr.Cluster, err = cpus.ClusterID(c.LCore); err != nil {
			return nil, err
		}
		r.Cores = append(r.Cores, cr)
	}

	sockets, err := socketReport(cpus)
	if err != nil {
		return nil, err
	}
	r.Sockets = sockets

	if r.L2Clusters, err = clusterReport(cpus, pqos.TopologyL2Cluster); err != nil {
		return nil, err
	}
	if r.L3Clusters, err = clusterReport(cpus, pqos.TopologyL3Cluster); err != nil {
		return nil, err
	}

	if r.Capabilities, err = capabilityReport(s.Capabilities); err != nil {
		return nil, err
	}

	return r, nil
}

func socketReport(cpus *pqos.CPUInfo) ([]GroupReport, error) {
	count, err := cpus.NumSockets()
	if err != nil {
		return nil, err
	}

	ids := make([]uint, count)
	n, err := cpus.Sockets(ids)
	if err != nil {
		return nil, err
	}

	var (
		report []GroupReport
		buf    = make([]uint, cpus.NumCores())
	)
	for _, id := range ids[:n] {
		cnt, err := cpus.SocketCores(id, buf)
		if err != nil {
			return nil, err
		}
		first, err := cpus.OneCore(id)
		if err != nil {
			return nil, err
		}
		report = append(report, GroupReport{
			ID:    id,
			Cores: cpuset.FromUints(buf[:cnt]).String(),
			First: &first,
		})
	}

	return report, nil
}

func clusterReport(cpus *pqos.CPUInfo, o pqos.TopologyObject) ([]GroupReport, error) {
	ids, err := cpus.GroupIDs(o)
	if err != nil {
		return nil, err
	}

	var report []GroupReport
	for _, id := range ids {
		cores, err := cpus.CoresInGroup(o, id)
		if err != nil {
			return nil, err
		}
		report = append(report, GroupReport{
			ID:    id,
			Cores: cpuset.FromUints(cores).String(),
		})
	}

	return report, nil
}

func capabilityReport(caps *pqos.Capabilities) (CapabilityReport, error) {
	r := CapabilityReport{
		Supported: []pqos.CapType{},
	}
	if caps == nil {
		return r, nil
	}

	for _, t := range pqos.CapTypes() {
		if !caps.Has(t) {
			continue
		}
		r.Supported = append(r.Supported, t)

		if t.IsAllocation() {
			count, err := caps.ClassCount(t)
			if err != nil {
				return r, err
			}
			if r.Classes == nil {
				r.Classes = map[string]uint{}
			}
			r.Classes[t.String()] = count
		}

		if t == pqos.CapTypeL3CA || t == pqos.CapTypeL2CA {
			supported, enabled, err := caps.CDP(t)
			if err != nil {
				return r, err
			}
			if r.CDP == nil {
				r.CDP = map[string]CDPInfo{}
			}
			r.CDP[t.String()] = CDPInfo{Supported: supported, Enabled: enabled}
		}
	}

	for _, e := range pqos.MonEvents() {
		_, err := caps.Event(e)
		switch {
		case err == nil:
			r.Events = append(r.Events, e)
		case errors.Is(err, pqos.ErrCapabilityAbsent):
			return r, nil
		case !errors.Is(err, pqos.ErrNotFound):
			return r, err
		}
	}

	return r, nil
}
