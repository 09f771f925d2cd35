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
	"runtime"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/gammazero/deque"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/vigilantdoomer/vigilantvis/bsp"
	"golang.org/x/sync/errgroup"
)

// How many pairs a worker tests between two cancellation checks
const cancelCheckInterval = 64

type options struct {
	workers  int
	progress func(done, total int)
}

// Option configures Build
type Option func(*options)

// WithWorkers sets how many rows of the pair matrix are computed at once.
// Defaults to GOMAXPROCS
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithProgress installs a callback receiving the number of pairs tested so
// far and the total. It is called from a single goroutine, once per finished
// row
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// Build computes the PVS of tree, which must pass Validate. Every unordered
// pair of distinct leaves is run through the swept volume test once and
// stored symmetrically. Rows of the pair matrix are spread over a pool of
// workers, a single goroutine owns the Set and merges their results.
// Cancelling ctx stops the build and returns ctx's error.
func Build(ctx context.Context, tree *bsp.Tree, opts ...Option) (*Set, error) {
	o := options{
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := tree.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	n := tree.LeafCount()
	set := New(n)
	total := n * (n - 1) / 2
	if n < 2 {
		return set, nil
	}

	logs.WithTag("leaves", n).
		WithTag("pairs", total).
		WithTag("workers", o.workers).
		Debug("building pvs")

	b := newBuilder(tree)
	rows := make(chan row, o.workers)
	merged := make(chan struct{})
	go func() {
		defer close(merged)
		done := 0
		for r := range rows {
			for _, j := range r.hidden {
				set.SetVisible(bsp.LeafID(r.leaf), j, false)
			}
			done += n - 1 - r.leaf
			if o.progress != nil {
				o.progress(done, total)
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := 0; i < n-1 && gctx.Err() == nil; i++ {
		g.Go(func() error {
			r, err := b.row(gctx, i)
			if err != nil {
				return err
			}
			select {
			case rows <- r:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	err := g.Wait()
	close(rows)
	<-merged

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}

	instrumentBuild(start)
	logs.WithTag("leaves", n).
		WithTag("visible_pairs", set.VisibleCount()).
		WithTag("duration", time.Since(start).String()).
		Info("pvs built")
	return set, nil
}

// row holds the leaves j > leaf which leaf cannot see
type row struct {
	leaf   int
	hidden []bsp.LeafID
}

// builder holds everything the pair test reads. It is computed once and only
// read by the workers
type builder struct {
	tree  *bsp.Tree
	boxes []bsp.Box
	// per leaf: segment endpoints and box corners, no duplicates
	sources [][]mgl64.Vec2
	// per leaf: box center and corners
	targets [][5]mgl64.Vec2
	// per leaf: its one-sided segments
	blockers [][]blocker

	scratch sync.Pool
}

type scratch struct {
	stack      deque.Deque[bsp.ChildRef]
	candidates []int
	blockers   []blocker
}

func newBuilder(tree *bsp.Tree) *builder {
	n := tree.LeafCount()
	b := &builder{
		tree:     tree,
		boxes:    LeafBoxes(tree),
		sources:  make([][]mgl64.Vec2, n),
		targets:  make([][5]mgl64.Vec2, n),
		blockers: make([][]blocker, n),
		scratch: sync.Pool{
			New: func() any { return new(scratch) },
		},
	}
	for i := 0; i < n; i++ {
		segs := tree.LeafSegments(bsp.LeafID(i))
		box := b.boxes[i]
		var src []mgl64.Vec2
		for k := range segs {
			src = appendUnique(src, vec(segs[k].Start))
			src = appendUnique(src, vec(segs[k].End))
			if segs[k].OneSided() {
				b.blockers[i] = append(b.blockers[i], blocker{
					a: vec(segs[k].Start),
					b: vec(segs[k].End),
				})
			}
		}
		corners := box.Corners()
		for _, c := range corners {
			src = appendUnique(src, vec(c))
		}
		b.sources[i] = src
		b.targets[i] = [5]mgl64.Vec2{
			vec(box.Center()),
			vec(corners[0]), vec(corners[1]), vec(corners[2]), vec(corners[3]),
		}
	}
	return b
}

func appendUnique(points []mgl64.Vec2, p mgl64.Vec2) []mgl64.Vec2 {
	for _, q := range points {
		if q == p {
			return points
		}
	}
	return append(points, p)
}

func (b *builder) row(ctx context.Context, i int) (row, error) {
	sc := b.scratch.Get().(*scratch)
	defer b.scratch.Put(sc)

	n := len(b.boxes)
	r := row{leaf: i}
	for j := i + 1; j < n; j++ {
		if (j-i)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return row{}, err
			}
		}
		if !b.visible(i, j, sc) {
			r.hidden = append(r.hidden, bsp.LeafID(j))
		}
	}
	instrumentRow(n-1-i, n-1-i-len(r.hidden))
	return r, nil
}

// visible runs the swept volume test from leaf src to leaf dst
func (b *builder) visible(src, dst int, sc *scratch) bool {
	vol := newVolume(b.boxes[src], b.boxes[dst])
	b.collectCandidates(&vol, src, dst, sc)

	sc.blockers = sc.blockers[:0]
	for _, c := range sc.candidates {
		sc.blockers = append(sc.blockers, b.blockers[c]...)
	}
	if len(sc.blockers) == 0 {
		return true
	}

	for _, s := range b.sources[src] {
		for _, t := range b.targets[dst] {
			if !rayBlocked(s, t, sc.blockers) {
				return true
			}
		}
	}
	return false
}

func rayBlocked(from, to mgl64.Vec2, blockers []blocker) bool {
	for k := range blockers {
		if blockers[k].crosses(from, to) {
			return true
		}
	}
	return false
}

// collectCandidates gathers the leaves, other than src and dst, whose
// branch of the tree the volume touches
func (b *builder) collectCandidates(vol *volume, src, dst int, sc *scratch) {
	sc.candidates = sc.candidates[:0]
	sc.stack.Clear()
	sc.stack.PushBack(b.tree.Root())
	for sc.stack.Len() > 0 {
		ref := sc.stack.PopBack()
		if ref.IsLeaf() {
			leaf := ref.Index()
			if leaf != src && leaf != dst && leaf < len(b.blockers) {
				sc.candidates = append(sc.candidates, leaf)
			}
			continue
		}
		node, ok := b.tree.Node(ref.Index())
		if !ok {
			continue
		}
		for side := 0; side < 2; side++ {
			if vol.intersects(node.Boxes[side]) {
				sc.stack.PushBack(node.Children[side])
			}
		}
	}
}
