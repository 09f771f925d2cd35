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
package pvs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/vigilantdoomer/vigilantvis/bsp"
)

// Cache file names are name-based UUIDs in this namespace
var cacheNamespace = uuid.MustParse("3c0a6b4e-5d1f-4a51-9b8e-7f62d0c1a9e4")

const cacheExt = ".pvs"

// CacheSettings is read from the environment
type CacheSettings struct {
	Dir      string `envconfig:"VIGILANTPVS_CACHE_DIR"`
	Disabled bool   `envconfig:"VIGILANTPVS_CACHE_DISABLED" default:"false"`
}

// LoadCacheSettings reads CacheSettings from the environment. Without
// VIGILANTPVS_CACHE_DIR the cache lives in a vigilantpvs directory under the
// user cache directory
func LoadCacheSettings() (CacheSettings, error) {
	var s CacheSettings
	if err := envconfig.Process("", &s); err != nil {
		return CacheSettings{}, errors.New("reading cache settings failed").Wrap(err)
	}
	if s.Dir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return CacheSettings{}, errors.New("no user cache directory").Wrap(err)
		}
		s.Dir = filepath.Join(dir, "vigilantpvs")
	}
	return s, nil
}

// CachePath returns where the set for level of asset is cached under dir.
// Same pair, same path
func CachePath(dir, asset, level string) string {
	id := uuid.NewSHA1(cacheNamespace, []byte(asset+"\x00"+level))
	return filepath.Join(dir, id.String()+cacheExt)
}

// Cache is a directory of cached sets
type Cache struct {
	Dir string
}

func (c Cache) Path(asset, level string) string {
	return CachePath(c.Dir, asset, level)
}

// Load returns the cached set for level of asset if there is a valid one
// built for leafCount leaves
func (c Cache) Load(asset, level string, leafCount int) (*Set, bool) {
	return LoadFromCache(c.Path(asset, level), leafCount)
}

// Save stores s as the set for level of asset, creating the directory if
// needed
func (c Cache) Save(asset, level string, s *Set) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return errors.New("creating cache directory failed").
			WithTag("dir", c.Dir).
			Wrap(err)
	}
	return s.SaveToFile(c.Path(asset, level))
}

// LoadOrBuild returns the cached set for level of asset or builds a new one
// and caches it. The bool reports a cache hit. A failure to save is logged
// and otherwise ignored, the freshly built set is still good
func LoadOrBuild(ctx context.Context, tree *bsp.Tree, c Cache, asset, level string, opts ...Option) (*Set, bool, error) {
	if s, ok := c.Load(asset, level, tree.LeafCount()); ok {
		logs.WithTag("asset", asset).
			WithTag("level", level).
			Debug("pvs loaded from cache")
		return s, true, nil
	}

	s, err := Build(ctx, tree, opts...)
	if err != nil {
		return nil, false, err
	}
	if err := c.Save(asset, level, s); err != nil {
		logs.WithTag("asset", asset).
			WithTag("level", level).
			Warn(errors.New("saving pvs cache failed").Wrap(err))
	}
	return s, false, nil
}
