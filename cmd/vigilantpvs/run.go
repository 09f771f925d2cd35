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
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"github.com/vigilantdoomer/vigilantvis/pvs"
	"github.com/vigilantdoomer/vigilantvis/wad"
)

type report struct {
	Version string        `json:"version"`
	Wad     string        `json:"wad"`
	Levels  []levelReport `json:"levels"`
	Failed  int           `json:"failed"`
}

type levelReport struct {
	Name         string  `json:"name"`
	NodesFormat  string  `json:"nodes_format,omitempty"`
	Subsectors   int     `json:"subsectors,omitempty"`
	Segs         int     `json:"segs,omitempty"`
	Sectors      int     `json:"sectors,omitempty"`
	VisiblePairs int     `json:"visible_pairs,omitempty"`
	VisibleRatio float64 `json:"visible_ratio,omitempty"`
	FromCache    bool    `json:"from_cache"`
	CacheFile    string  `json:"cache_file,omitempty"`
	Seconds      float64 `json:"seconds"`
	Error        string  `json:"error,omitempty"`
}

// run processes every selected level of the wad. A level that fails to load
// or build is reported and skipped, cancellation stops everything
func run(ctx context.Context, conf config, settings pvs.CacheSettings) (report, error) {
	rep := report{
		Version: version,
		Wad:     conf.Wad,
	}

	f, err := wad.Open(conf.Wad)
	if err != nil {
		return rep, err
	}
	defer f.Close()

	levels := selectLevels(f.Levels(), conf.Levels)
	if len(levels) == 0 {
		return rep, errors.New("no levels to process").
			WithTag("wad", conf.Wad).
			WithTag("filter", conf.Levels)
	}

	// The asset key is the wad's absolute path, the leaf count check on load
	// catches a wad edited in place
	asset, err := filepath.Abs(conf.Wad)
	if err != nil {
		asset = conf.Wad
	}
	cache := pvs.Cache{Dir: settings.Dir}

	for _, name := range levels {
		lr, err := processLevel(ctx, f, name, conf, settings.Disabled, cache, asset)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rep, ctxErr
		}
		if err != nil {
			logs.WithTag("level", name).Warn(err)
			lr.Error = err.Error()
			rep.Failed++
		}
		rep.Levels = append(rep.Levels, lr)
	}
	return rep, nil
}

func processLevel(ctx context.Context, f *wad.File, name string, conf config, noCache bool, cache pvs.Cache, asset string) (levelReport, error) {
	start := time.Now()
	lr := levelReport{Name: name}

	level, err := f.LoadLevel(name)
	if err != nil {
		return lr, err
	}
	tree := level.Tree
	lr.NodesFormat = level.Nodes.String()
	lr.Subsectors = tree.LeafCount()
	lr.Segs = tree.SegmentCount()
	lr.Sectors = level.SectorCount

	opts := []pvs.Option{
		pvs.WithWorkers(conf.Workers),
		pvs.WithProgress(progressLogger(name)),
	}

	var set *pvs.Set
	switch {
	case noCache:
		set, err = pvs.Build(ctx, tree, opts...)

	case conf.Force:
		set, err = pvs.Build(ctx, tree, opts...)
		if err == nil {
			lr.CacheFile = cache.Path(asset, name)
			if err := cache.Save(asset, name, set); err != nil {
				logs.WithTag("level", name).Warn(err)
			}
		}

	default:
		lr.CacheFile = cache.Path(asset, name)
		set, lr.FromCache, err = pvs.LoadOrBuild(ctx, tree, cache, asset, name, opts...)
	}
	if err != nil {
		return lr, err
	}

	n := set.LeafCount()
	lr.VisiblePairs = set.VisibleCount()
	if n > 0 {
		lr.VisibleRatio = float64(lr.VisiblePairs) / float64(n*n)
	}
	lr.Seconds = time.Since(start).Seconds()

	logs.WithTag("level", name).
		WithTag("subsectors", n).
		WithTag("visible_pairs", lr.VisiblePairs).
		WithTag("from_cache", lr.FromCache).
		WithTag("seconds", lr.Seconds).
		Info("level done")
	return lr, nil
}

// selectLevels keeps the levels named in filter, in wad order. Filter names
// are case insensitive, unknown ones are logged
func selectLevels(levels, filter []string) []string {
	if len(filter) == 0 {
		return levels
	}

	wanted := make(map[string]bool, len(filter))
	for _, name := range filter {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		wanted[name] = true
		if !slices.Contains(levels, name) {
			logs.WithTag("level", name).Warn(errors.New("level not in wad"))
		}
	}

	var selected []string
	for _, name := range levels {
		if wanted[name] {
			selected = append(selected, name)
		}
	}
	return selected
}

// progressLogger logs build progress in steps of a tenth
func progressLogger(level string) func(done, total int) {
	lastStep := 0
	return func(done, total int) {
		if total == 0 {
			return
		}
		step := done * 10 / total
		if step == lastStep {
			return
		}
		lastStep = step
		logs.WithTag("level", level).
			WithTag("done", done).
			WithTag("total", total).
			Info("building pvs")
	}
}

func writeReport(path string, rep report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return errors.New("encoding report failed").Wrap(err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.New("writing report failed").
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}
