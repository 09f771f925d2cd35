// Copyright (C) 2025, VigilantDoomer
//
// This file is part of VigilantVIS program.
//
// VigilantVIS is free software: you can redistribute it
// and/or modify it under the terms of GNU General Public License
// as published by the Free Software Foundation, either version 2 of
// the License, or (at your option) any later version.
//
// VigilantVIS is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VigilantVIS.  If not, see <https://www.gnu.org/licenses/>.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"runtime"
	"syscall"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"github.com/vigilantdoomer/vigilantvis/pvs"
)

var (
	// Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "vigilantpvs_info",
		Help:        "VigilantVIS information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// Keeps the config struct readable by the cli package under obfuscating builds.
var _ = reflect.TypeOf(config{})

type config struct {
	Wad         string   `cli:""        env:"VIGILANTPVS_WAD"          help:"Wad file holding levels with prebuilt nodes."`
	Levels      []string `cli:""        env:"VIGILANTPVS_LEVELS"       help:"Comma separated level names to process, all levels when empty."`
	CacheDir    string   `cli:""        env:"-"                        help:"Cache directory, overrides VIGILANTPVS_CACHE_DIR."`
	NoCache     bool     `cli:""        env:"-"                        help:"Neither read nor write the cache."`
	Force       bool     `cli:""        env:"VIGILANTPVS_FORCE"        help:"Rebuild even when a valid cache entry exists."`
	Workers     int      `cli:""        env:"VIGILANTPVS_WORKERS"      help:"Number of leaf rows computed at once."`
	Report      string   `cli:""        env:"VIGILANTPVS_REPORT"       help:"Write a JSON report to this file."`
	MetricsAddr string   `cli:",hidden" env:"VIGILANTPVS_METRICS_ADDR" help:"Serve Prometheus metrics on this address while running."`
	LogLevel    string   `cli:""        env:"VIGILANTPVS_LOG_LEVEL"    help:"Log level (debug|info|warning|error)."`
	LogIndent   bool     `cli:""        env:"VIGILANTPVS_LOG_INDENT"   help:"Indent logs."`
	Version     bool     `cli:""        env:"-"                        help:"Show version."`
	Help        bool     `cli:""        env:"-"                        help:"Show help."`
}

func main() {
	conf := config{
		Workers:  runtime.GOMAXPROCS(0),
		LogLevel: logs.InfoLevel.String(),
	}

	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Computes the potentially visible sets of the levels in a wad.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	settings, err := pvs.LoadCacheSettings()
	if err != nil {
		logs.Fatal(err)
	}
	if conf.CacheDir != "" {
		settings.Dir = conf.CacheDir
	}
	if conf.NoCache {
		settings.Disabled = true
	}

	if conf.MetricsAddr != "" {
		go serveMetrics(ctx, conf.MetricsAddr)
	}

	logs.WithTag("version", version).
		WithTag("wad", conf.Wad).
		WithTag("workers", conf.Workers).
		WithTag("cache_dir", settings.Dir).
		WithTag("cache_disabled", settings.Disabled).
		Info("starting vigilantpvs")

	rep, err := run(ctx, conf, settings)
	if err != nil {
		logs.Fatal(err)
	}

	if conf.Report != "" {
		if err := writeReport(conf.Report, rep); err != nil {
			logs.Fatal(err)
		}
	}
	if rep.Failed > 0 {
		cancel()
		os.Exit(1)
	}
}

func validateConfig(conf config) error {
	if conf.Wad == "" {
		return errors.New("no wad given")
	}
	if conf.Workers < 1 {
		return errors.New("workers must be at least 1").
			WithTag("workers", conf.Workers)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string) {
	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	s := &http.Server{Addr: addr, Handler: &admin}

	go func() {
		<-ctx.Done()
		if err := s.Shutdown(context.Background()); err != nil {
			logs.Warn(errors.New("shutting down the metrics server failed").
				WithTag("addr", addr).
				Wrap(err))
		}
	}()

	logs.WithTag("addr", addr).Info("starting metrics server")
	switch err := s.ListenAndServe(); err {
	case nil, http.ErrServerClosed:
		logs.WithTag("addr", addr).Info("stopping metrics server")
	default:
		logs.Warn(errors.New("metrics server stopped").
			WithTag("addr", addr).
			Wrap(err))
	}
}
