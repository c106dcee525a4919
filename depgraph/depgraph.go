// Package depgraph maintains the feature dependency graph of a document:
// which features consume the outputs of which, which are dirty relative to
// their parameters or upstream inputs, and the minimal correctly ordered
// set to recompute after an edit.
//
// Edges mean "consumes output of" or "references a ShapeID owned by".
// Cycle detection runs at edge-insertion time: an edge that would close a
// cycle is rejected with ErrDependencyCycle and the graph is left
// unchanged, since a cyclic graph has no valid rebuild order.
package depgraph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/brepkit/identity/shape"
)

// Sentinel errors for graph operations.
var (
	// ErrDependencyCycle indicates an edge that would close a cycle.
	ErrDependencyCycle = errors.New("depgraph: dependency cycle")

	// ErrFeatureNotFound indicates an operation on an unknown feature.
	ErrFeatureNotFound = errors.New("depgraph: feature not found")

	// ErrDuplicateFeature indicates adding a feature that already exists.
	ErrDuplicateFeature = errors.New("depgraph: duplicate feature")

	// ErrSelfDependency indicates an edge from a feature to itself.
	ErrSelfDependency = errors.New("depgraph: self-referencing dependency")
)

// Status is the lifecycle state of a feature node.
type Status string

const (
	// StatusOK means the feature's cached output is current.
	StatusOK Status = "ok"

	// StatusFailed means the kernel rejected the feature's last rebuild.
	StatusFailed Status = "failed"

	// StatusDegraded means the feature rebuilt but one or more of its
	// shape references did not resolve; it needs manual re-selection.
	StatusDegraded Status = "degraded"
)

// Node is one feature in the graph.
type Node struct {
	// ID identifies the feature.
	ID shape.FeatureID

	// Params are the feature's current parameters, opaque to the graph.
	Params map[string]any

	// CachedOutput is the solid produced by the last successful rebuild,
	// nil before the first build.
	CachedOutput shape.Solid

	// Dirty marks the cached output stale relative to parameters or
	// upstream inputs. Within one edit transaction dirty is monotonic:
	// only a successful rebuild of this exact node clears it.
	Dirty bool

	// Status is the node's lifecycle state.
	Status Status

	// Err holds the kernel error detail when Status is StatusFailed.
	Err error

	// seq is the creation order, used as the deterministic tie-break in
	// topological ordering.
	seq int
}

// Graph is the feature DAG. All methods are safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[shape.FeatureID]*Node
	// upstream maps a feature to the set of features it consumes.
	upstream map[shape.FeatureID]map[shape.FeatureID]bool
	// downstream maps a feature to the set of features consuming it.
	downstream map[shape.FeatureID]map[shape.FeatureID]bool
	nextSeq    int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[shape.FeatureID]*Node),
		upstream:   make(map[shape.FeatureID]map[shape.FeatureID]bool),
		downstream: make(map[shape.FeatureID]map[shape.FeatureID]bool),
	}
}

// AddFeature adds a feature consuming the given upstream features. New
// features start dirty: they have never built. Returns ErrDuplicateFeature
// if the ID exists and ErrFeatureNotFound if an upstream is unknown.
func (g *Graph) AddFeature(id shape.FeatureID, upstream ...shape.FeatureID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFeature, id)
	}
	for _, up := range upstream {
		if _, ok := g.nodes[up]; !ok {
			return fmt.Errorf("%w: upstream %s", ErrFeatureNotFound, up)
		}
	}

	g.nodes[id] = &Node{
		ID:     id,
		Params: make(map[string]any),
		Dirty:  true,
		Status: StatusOK,
		seq:    g.nextSeq,
	}
	g.nextSeq++
	g.upstream[id] = make(map[shape.FeatureID]bool)
	g.downstream[id] = make(map[shape.FeatureID]bool)
	for _, up := range upstream {
		g.upstream[id][up] = true
		g.downstream[up][id] = true
	}
	return nil
}

// AddDependency records that consumer depends on producer (consumes its
// output or references a ShapeID it owns). An edge that would close a
// cycle is rejected with ErrDependencyCycle and the graph is left exactly
// as it was.
func (g *Graph) AddDependency(consumer, producer shape.FeatureID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if consumer == producer {
		return fmt.Errorf("%w: %s", ErrSelfDependency, consumer)
	}
	if _, ok := g.nodes[consumer]; !ok {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, consumer)
	}
	if _, ok := g.nodes[producer]; !ok {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, producer)
	}
	if g.upstream[consumer][producer] {
		return nil
	}
	// The edge producer→consumer (in rebuild order) closes a cycle exactly
	// when consumer already reaches producer through existing edges.
	if g.reaches(consumer, producer) {
		return fmt.Errorf("%w: %s → %s", ErrDependencyCycle, consumer, producer)
	}
	g.upstream[consumer][producer] = true
	g.downstream[producer][consumer] = true
	return nil
}

// RemoveFeature removes a feature and all its edges.
func (g *Graph) RemoveFeature(id shape.FeatureID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	for up := range g.upstream[id] {
		delete(g.downstream[up], id)
	}
	for down := range g.downstream[id] {
		delete(g.upstream[down], id)
	}
	delete(g.upstream, id)
	delete(g.downstream, id)
	delete(g.nodes, id)
	return nil
}

// MarkDirty flags the feature and every transitive downstream consumer,
// returning the IDs flagged in creation order. Upstream features and
// unrelated siblings are untouched.
func (g *Graph) MarkDirty(id shape.FeatureID) ([]shape.FeatureID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}

	flagged := map[shape.FeatureID]bool{}
	g.flagDownstream(id, flagged)

	out := make([]shape.FeatureID, 0, len(flagged))
	for fid := range flagged {
		g.nodes[fid].Dirty = true
		out = append(out, fid)
	}
	g.sortByCreation(out)
	return out, nil
}

// SetParams replaces the feature's parameters and flags it and all
// transitive downstream consumers dirty.
func (g *Graph) SetParams(id shape.FeatureID, params map[string]any) ([]shape.FeatureID, error) {
	g.mu.Lock()
	node, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	node.Params = params
	g.mu.Unlock()

	return g.MarkDirty(id)
}

// DirtySet returns every dirty feature, in creation order.
func (g *Graph) DirtySet() []shape.FeatureID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []shape.FeatureID
	for id, node := range g.nodes {
		if node.Dirty {
			out = append(out, id)
		}
	}
	g.sortByCreation(out)
	return out
}

// TopoOrder returns the minimal dependency-respecting rebuild order for
// the given dirty set: every listed feature appears after all of its
// listed upstream features, with ties broken by creation order for
// determinism. Features outside the set are not included; their cached
// outputs are current by definition.
func (g *Graph) TopoOrder(dirty []shape.FeatureID) ([]shape.FeatureID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inSet := make(map[shape.FeatureID]bool, len(dirty))
	for _, id := range dirty {
		if _, ok := g.nodes[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
		}
		inSet[id] = true
	}

	// Kahn's algorithm over the subgraph induced by the dirty set.
	inDegree := make(map[shape.FeatureID]int, len(inSet))
	for id := range inSet {
		n := 0
		for up := range g.upstream[id] {
			if inSet[up] {
				n++
			}
		}
		inDegree[id] = n
	}

	var ready []shape.FeatureID
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	g.sortByCreation(ready)

	order := make([]shape.FeatureID, 0, len(inSet))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var freed []shape.FeatureID
		for down := range g.downstream[id] {
			if !inSet[down] {
				continue
			}
			inDegree[down]--
			if inDegree[down] == 0 {
				freed = append(freed, down)
			}
		}
		if len(freed) > 0 {
			g.sortByCreation(freed)
			ready = append(ready, freed...)
			g.sortByCreation(ready)
		}
	}

	if len(order) != len(inSet) {
		// Unreachable while AddDependency rejects cycles; kept as a guard
		// against graph corruption.
		return nil, fmt.Errorf("%w: %d of %d features unorderable",
			ErrDependencyCycle, len(inSet)-len(order), len(inSet))
	}
	return order, nil
}

// Downstream returns every transitive consumer of the feature, in
// creation order.
func (g *Graph) Downstream(id shape.FeatureID) []shape.FeatureID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	visited := map[shape.FeatureID]bool{}
	g.collect(id, g.downstream, visited)
	out := make([]shape.FeatureID, 0, len(visited))
	for fid := range visited {
		out = append(out, fid)
	}
	g.sortByCreation(out)
	return out
}

// Upstream returns every transitive producer the feature depends on, in
// creation order.
func (g *Graph) Upstream(id shape.FeatureID) []shape.FeatureID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	visited := map[shape.FeatureID]bool{}
	g.collect(id, g.upstream, visited)
	out := make([]shape.FeatureID, 0, len(visited))
	for fid := range visited {
		out = append(out, fid)
	}
	g.sortByCreation(out)
	return out
}

// DirectUpstream returns the features the feature directly consumes, in
// creation order.
func (g *Graph) DirectUpstream(id shape.FeatureID) []shape.FeatureID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]shape.FeatureID, 0, len(g.upstream[id]))
	for up := range g.upstream[id] {
		out = append(out, up)
	}
	g.sortByCreation(out)
	return out
}

// Feature returns a snapshot copy of the node, or ErrFeatureNotFound.
func (g *Graph) Feature(id shape.FeatureID) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	return *node, nil
}

// Features returns every feature ID in creation order.
func (g *Graph) Features() []shape.FeatureID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]shape.FeatureID, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	g.sortByCreation(out)
	return out
}

// Len returns the number of features.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// SetBuilt records a successful rebuild of the feature: the cached output
// is replaced, the dirty flag cleared, and the status reset to OK. This is
// the only way a dirty flag is cleared.
func (g *Graph) SetBuilt(id shape.FeatureID, output shape.Solid) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	node.CachedOutput = output
	node.Dirty = false
	node.Status = StatusOK
	node.Err = nil
	return nil
}

// SetFailed records a kernel-rejected rebuild: the node keeps its dirty
// flag and stale cache, and carries the kernel's error detail.
func (g *Graph) SetFailed(id shape.FeatureID, err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	node.Status = StatusFailed
	node.Err = err
	return nil
}

// SetDegraded marks a rebuilt feature whose shape references did not all
// resolve; it is shown as needing manual re-selection, never auto-corrected.
func (g *Graph) SetDegraded(id shape.FeatureID, err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
	}
	node.Status = StatusDegraded
	node.Err = err
	return nil
}

// StateSnapshot captures the mutable per-node state (dirty flags, caches,
// statuses) for restore after a rolled-back transaction. Edges are not
// captured; transactions do not edit topology.
type StateSnapshot struct {
	states map[shape.FeatureID]nodeState
}

type nodeState struct {
	dirty  bool
	status Status
	err    error
	output shape.Solid
}

// SnapshotState captures the current node states.
func (g *Graph) SnapshotState() *StateSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &StateSnapshot{states: make(map[shape.FeatureID]nodeState, len(g.nodes))}
	for id, node := range g.nodes {
		snap.states[id] = nodeState{
			dirty:  node.Dirty,
			status: node.Status,
			err:    node.Err,
			output: node.CachedOutput,
		}
	}
	return snap
}

// RestoreState restores node states from a snapshot. Features added or
// removed since the snapshot keep their current state.
func (g *Graph) RestoreState(snap *StateSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, st := range snap.states {
		node, ok := g.nodes[id]
		if !ok {
			continue
		}
		node.Dirty = st.dirty
		node.Status = st.status
		node.Err = st.err
		node.CachedOutput = st.output
	}
}

// reaches reports whether dst is reachable from src over downstream edges.
func (g *Graph) reaches(src, dst shape.FeatureID) bool {
	if src == dst {
		return true
	}
	visited := map[shape.FeatureID]bool{}
	queue := []shape.FeatureID{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.downstream[cur] {
			if next == dst {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// collect adds every node transitively reachable from id over edges to
// visited, excluding id itself.
func (g *Graph) collect(id shape.FeatureID, edges map[shape.FeatureID]map[shape.FeatureID]bool, visited map[shape.FeatureID]bool) {
	for next := range edges[id] {
		if !visited[next] {
			visited[next] = true
			g.collect(next, edges, visited)
		}
	}
}

func (g *Graph) flagDownstream(id shape.FeatureID, flagged map[shape.FeatureID]bool) {
	if flagged[id] {
		return
	}
	flagged[id] = true
	for down := range g.downstream[id] {
		g.flagDownstream(down, flagged)
	}
}

func (g *Graph) sortByCreation(ids []shape.FeatureID) {
	sort.Slice(ids, func(i, j int) bool {
		return g.nodes[ids[i]].seq < g.nodes[ids[j]].seq
	})
}
