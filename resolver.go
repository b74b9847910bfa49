// resolver.go: Dependency graph construction and load-order resolution
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"sort"
)

// Resolution is the outcome of one dependency resolution pass.
//
// Classification is three-way: a descriptor is either in Order (safely
// loadable), in Missing (at least one direct dependency absent from the
// discovered set), or in Cyclic (on a dependency cycle). Missing checks
// direct dependencies only: a descriptor whose dependency is present but
// itself blocked is not propagated into an error state. That keeps
// resolution local and predictable; stricter transitive propagation would
// change observable behavior and is deliberately not done.
type Resolution struct {
	// Order is the loadable subset in topological order: every direct
	// dependency that is itself loadable appears before its dependents.
	// Ties among independent descriptors break by discovery order, so
	// resolution over the same input is reproducible.
	Order []*Descriptor

	// Missing maps a descriptor identity to its direct dependencies that
	// were not discovered.
	Missing map[string][]string

	// Cyclic maps each identity on a dependency cycle to the full
	// membership of its cycle, in discovery order. Every node on a cycle
	// is recorded, not just the one where detection triggered; nodes that
	// merely depend on a cycle are not in this map.
	Cyclic map[string][]string
}

// Blocked reports whether an identity was excluded from the load order.
func (r *Resolution) Blocked(identity string) bool {
	if _, ok := r.Missing[identity]; ok {
		return true
	}
	_, ok := r.Cyclic[identity]
	return ok
}

// ResolveDependencies builds the dependency graph over the discovered
// descriptors and computes the load order.
//
// The graph itself is transient: callers only ever see the Resolution.
func ResolveDependencies(descriptors []*Descriptor) *Resolution {
	g := newDepGraph(descriptors)

	resolution := &Resolution{
		Missing: g.findMissing(),
		Cyclic:  g.findCycles(),
	}
	resolution.Order = g.loadOrder(resolution)
	return resolution
}

// depGraph is the transient dependency graph: nodes are descriptor
// identities, edges point from a descriptor to its dependencies.
type depGraph struct {
	descriptors []*Descriptor
	byIdentity  map[string]*Descriptor
	position    map[string]int // identity -> discovery index
}

func newDepGraph(descriptors []*Descriptor) *depGraph {
	g := &depGraph{
		descriptors: descriptors,
		byIdentity:  make(map[string]*Descriptor, len(descriptors)),
		position:    make(map[string]int, len(descriptors)),
	}
	for i, d := range descriptors {
		g.byIdentity[d.Identity] = d
		g.position[d.Identity] = i
	}
	return g
}

// presentDeps returns the dependencies of an identity that exist in the
// discovered set.
func (g *depGraph) presentDeps(identity string) []string {
	d := g.byIdentity[identity]
	deps := make([]string, 0, len(d.Dependencies))
	for _, ref := range d.Dependencies {
		if _, ok := g.byIdentity[ref.Identity]; ok {
			deps = append(deps, ref.Identity)
		}
	}
	return deps
}

// findMissing records, per descriptor, the direct dependencies absent from
// the discovered set.
func (g *depGraph) findMissing() map[string][]string {
	missing := make(map[string][]string)
	for _, d := range g.descriptors {
		for _, ref := range d.Dependencies {
			if _, ok := g.byIdentity[ref.Identity]; !ok {
				missing[d.Identity] = append(missing[d.Identity], ref.Identity)
			}
		}
	}
	return missing
}

// findCycles computes strongly connected components over the graph and
// returns every identity on a cycle mapped to its full cycle membership.
// A component qualifies when it has more than one member, or a single
// member that depends on itself.
func (g *depGraph) findCycles() map[string][]string {
	components := g.stronglyConnected()

	cyclic := make(map[string][]string)
	for _, component := range components {
		if len(component) == 1 && !g.selfLoop(component[0]) {
			continue
		}

		members := append([]string(nil), component...)
		sort.Slice(members, func(i, j int) bool {
			return g.position[members[i]] < g.position[members[j]]
		})
		for _, member := range members {
			cyclic[member] = members
		}
	}
	return cyclic
}

func (g *depGraph) selfLoop(identity string) bool {
	for _, dep := range g.presentDeps(identity) {
		if dep == identity {
			return true
		}
	}
	return false
}

// stronglyConnected runs an iterative Tarjan SCC over the graph. Iterative
// because extension trees can be deep enough that recursion depth matters
// on constrained hosts.
func (g *depGraph) stronglyConnected() [][]string {
	const unvisited = -1

	index := 0
	indices := make(map[string]int, len(g.descriptors))
	lowlink := make(map[string]int, len(g.descriptors))
	onStack := make(map[string]bool, len(g.descriptors))
	var stack []string
	var components [][]string

	for _, d := range g.descriptors {
		indices[d.Identity] = unvisited
	}

	type frame struct {
		node    string
		deps    []string
		nextDep int
	}

	for _, root := range g.descriptors {
		if indices[root.Identity] != unvisited {
			continue
		}

		callStack := []frame{{node: root.Identity, deps: g.presentDeps(root.Identity)}}
		indices[root.Identity] = index
		lowlink[root.Identity] = index
		index++
		stack = append(stack, root.Identity)
		onStack[root.Identity] = true

		for len(callStack) > 0 {
			top := &callStack[len(callStack)-1]

			if top.nextDep < len(top.deps) {
				dep := top.deps[top.nextDep]
				top.nextDep++

				if indices[dep] == unvisited {
					indices[dep] = index
					lowlink[dep] = index
					index++
					stack = append(stack, dep)
					onStack[dep] = true
					callStack = append(callStack, frame{node: dep, deps: g.presentDeps(dep)})
				} else if onStack[dep] {
					if indices[dep] < lowlink[top.node] {
						lowlink[top.node] = indices[dep]
					}
				}
				continue
			}

			// Node finished: pop and fold its lowlink into the parent.
			finished := top.node
			callStack = callStack[:len(callStack)-1]
			if len(callStack) > 0 {
				parent := callStack[len(callStack)-1].node
				if lowlink[finished] < lowlink[parent] {
					lowlink[parent] = lowlink[finished]
				}
			}

			if lowlink[finished] == indices[finished] {
				var component []string
				for {
					n := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[n] = false
					component = append(component, n)
					if n == finished {
						break
					}
				}
				components = append(components, component)
			}
		}
	}

	return components
}

// loadOrder runs Kahn's algorithm over the loadable subset.
//
// Edges to blocked descriptors are ignored: the direct-only policy means a
// descriptor whose dependency is present-but-blocked still loads. Among
// simultaneously-ready descriptors the earliest discovered goes first.
func (g *depGraph) loadOrder(resolution *Resolution) []*Descriptor {
	loadable := make([]*Descriptor, 0, len(g.descriptors))
	for _, d := range g.descriptors {
		if !resolution.Blocked(d.Identity) {
			loadable = append(loadable, d)
		}
	}

	inLoadable := make(map[string]bool, len(loadable))
	for _, d := range loadable {
		inLoadable[d.Identity] = true
	}

	// In-degree counts only dependencies inside the loadable subset.
	inDegree := make(map[string]int, len(loadable))
	dependents := make(map[string][]string, len(loadable))
	for _, d := range loadable {
		for _, dep := range g.presentDeps(d.Identity) {
			if !inLoadable[dep] {
				continue
			}
			inDegree[d.Identity]++
			dependents[dep] = append(dependents[dep], d.Identity)
		}
	}

	ready := make([]string, 0, len(loadable))
	for _, d := range loadable {
		if inDegree[d.Identity] == 0 {
			ready = append(ready, d.Identity)
		}
	}
	g.sortByDiscovery(ready)

	order := make([]*Descriptor, 0, len(loadable))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, g.byIdentity[current])

		released := false
		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
				released = true
			}
		}
		if released {
			g.sortByDiscovery(ready)
		}
	}

	return order
}

func (g *depGraph) sortByDiscovery(identities []string) {
	sort.Slice(identities, func(i, j int) bool {
		return g.position[identities[i]] < g.position[identities[j]]
	})
}
