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

// pqos-info discovers or loads the CPU topology and resource control
// capabilities of a system, prints a report of them and optionally
// exports them as prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/yaml"

	cfgapi "github.com/containers/pqos-query/pkg/apis/config/v1alpha1/log"
	"github.com/containers/pqos-query/pkg/healthz"
	"github.com/containers/pqos-query/pkg/hwinfo"
	logger "github.com/containers/pqos-query/pkg/log"
	"github.com/containers/pqos-query/pkg/metrics"
	"github.com/containers/pqos-query/pkg/metrics/collectors"
	"github.com/containers/pqos-query/pkg/pqos"
	"github.com/containers/pqos-query/pkg/resctrl"
	"github.com/containers/pqos-query/pkg/snapshot"
	"github.com/containers/pqos-query/pkg/sysfs"
)

const (
	sourceSysfs = "sysfs"
	sourceGhw   = "ghw"
)

var (
	log = logger.Get("pqos-info")
)

type options struct {
	snapshot    string
	hostRoot    string
	source      string
	dump        string
	metricsAddr string
	namespace   string
	metrics     globList
	debug       string
	logSource   bool
	quiet       bool
}

// globList is a flag.Value collecting comma-separated globs.
type globList []string

func (l *globList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *globList) Set(value string) error {
	for _, glob := range strings.Split(value, ",") {
		if glob = strings.TrimSpace(glob); glob != "" {
			*l = append(*l, glob)
		}
	}
	return nil
}

func parseFlags() *options {
	opt := &options{}

	flag.StringVar(&opt.snapshot, "snapshot", "",
		"load the system snapshot from the given YAML or JSON file instead of discovering it")
	flag.StringVar(&opt.hostRoot, "host-root", "",
		"directory the host root filesystem is mounted at, if not /")
	flag.StringVar(&opt.source, "source", sourceSysfs,
		"CPU topology discovery source, "+sourceSysfs+" or "+sourceGhw)
	flag.StringVar(&opt.dump, "dump", "",
		"save the system snapshot to the given file")
	flag.StringVar(&opt.metricsAddr, "metrics-addr", "",
		"serve prometheus metrics at the given address, for instance :8891")
	flag.StringVar(&opt.namespace, "metrics-namespace", "pqos",
		"namespace prefix for exported metrics")
	flag.Var(&opt.metrics, "metrics",
		"comma-separated globs of group/collector names to export, for instance system/*,standard/golang (default *)")
	flag.StringVar(&opt.debug, "debug", "",
		"enable debug logging for the given sources, for instance on:pqos,sysfs")
	flag.BoolVar(&opt.logSource, "log-source", false,
		"prefix log messages with their source")
	flag.BoolVar(&opt.quiet, "quiet", false,
		"do not print the report")
	flag.Parse()

	return opt
}

func main() {
	opt := parseFlags()

	cfg := &cfgapi.Config{LogSource: opt.logSource}
	if opt.debug != "" {
		cfg.Debug = []string{opt.debug}
	}
	if err := logger.Configure(cfg); err != nil {
		log.Fatal("invalid logging configuration: %v", err)
	}
	logger.SetSlogLogger("pqos-info")

	s, err := getSnapshot(opt)
	if err != nil {
		log.Fatal("failed to get system snapshot: %v", err)
	}

	if opt.dump != "" {
		if err := s.Save(opt.dump); err != nil {
			log.Fatal("%v", err)
		}
	}

	if !opt.quiet {
		if err := printReport(s); err != nil {
			log.Fatal("failed to generate report: %v", err)
		}
	}

	if opt.metricsAddr != "" {
		if err := serveMetrics(opt, s); err != nil {
			log.Fatal("%v", err)
		}
	}
}

func getSnapshot(opt *options) (*snapshot.Snapshot, error) {
	if opt.snapshot != "" {
		return snapshot.Load(opt.snapshot)
	}

	var (
		cpus *pqos.CPUInfo
		err  error
	)

	switch opt.source {
	case sourceSysfs:
		sysfs.SetSysRoot(opt.hostRoot)
		cpus, err = sysfs.DiscoverCPUInfo()
	case sourceGhw:
		cpus, err = hwinfo.DiscoverCPUInfo(opt.hostRoot)
	default:
		return nil, fmt.Errorf("unknown discovery source %q", opt.source)
	}
	if err != nil {
		return nil, err
	}

	if opt.hostRoot != "" {
		resctrl.SetPrefix(opt.hostRoot)
	}
	caps, err := resctrl.DiscoverCapabilities(cpus)
	if err != nil {
		return nil, err
	}

	s := &snapshot.Snapshot{
		CPU:          cpus,
		Capabilities: caps,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func printReport(s *snapshot.Snapshot) error {
	r, err := buildReport(s)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(r)
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(out)
	return err
}

// metricsHandler sets up the HTTP handler serving /metrics with the
// selected collectors and /healthz.
func metricsHandler(opt *options, s *snapshot.Snapshot) (http.Handler, error) {
	r := metrics.NewRegistry()
	if err := r.Register("snapshot", collectors.NewSnapshotCollector(s.CPU, s.Capabilities),
		metrics.WithGroup("system"), metrics.WithCollectorOptions(metrics.WithoutSubsystem())); err != nil {
		return nil, err
	}
	if err := collectors.RegisterStandard(r); err != nil {
		return nil, err
	}

	gopts := []metrics.GathererOption{metrics.WithNamespace(opt.namespace)}
	if len(opt.metrics) > 0 {
		gopts = append(gopts, metrics.WithMetrics(opt.metrics))
	}

	g, err := r.NewGatherer(gopts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics gatherer: %w (available collectors: %s)",
			err, strings.Join(r.Collectors(), ", "))
	}

	health := healthz.NewChecker()
	if err := health.Register("snapshot", func() (healthz.Status, error) {
		if err := s.Validate(); err != nil {
			return healthz.NonFunctional, err
		}
		return healthz.Healthy, nil
	}); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	health.Setup(mux)

	return mux, nil
}

func serveMetrics(opt *options, s *snapshot.Snapshot) error {
	handler, err := metricsHandler(opt, s)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              opt.metricsAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Get("http").SlogHandler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving metrics at %s/metrics", opt.metricsAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down metrics server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
