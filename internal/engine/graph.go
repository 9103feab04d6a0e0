package engine

import (
	"fmt"

	"github.com/tidemark-io/tidemark/internal/model"
)

// Graph is the directed acyclic dependency graph over one resource batch,
// used to order change actions.
type Graph struct {
	nodes map[string]*graphNode
	order []string // topological order (creation order)
}

type graphNode struct {
	id         string
	declIndex  int      // position in the declaration sequence, the tie-breaker
	deps       []string // resources this node depends on
	dependents []string // resources that depend on this node
}

// PlanError reports a graph inconsistency discovered while computing a plan.
type PlanError struct {
	Code   string
	Detail string
}

const PlanCyclicDependency = "CyclicDependency"

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan error: %s: %s", e.Code, e.Detail)
}

// BuildGraph constructs the dependency graph for a desired resource batch.
// Edges pointing outside the batch are ignored.
func BuildGraph(resources []*model.Resource) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode, len(resources))}
	for i, res := range resources {
		g.nodes[res.ID] = &graphNode{id: res.ID, declIndex: i}
	}
	for _, res := range resources {
		node := g.nodes[res.ID]
		for _, dep := range res.DependsOn {
			if _, ok := g.nodes[dep]; ok {
				node.deps = append(node.deps, dep)
			}
		}
	}
	return g.finish()
}

// BuildGraphFromRecorded constructs the dependency graph over a set of
// recorded states, using the dependency ids captured at apply time. Edges to
// records outside the set are ignored; deletes only need ordering among
// themselves.
func BuildGraphFromRecorded(records []*model.RecordedState) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode, len(records))}
	for i, rec := range records {
		g.nodes[rec.ResourceID] = &graphNode{id: rec.ResourceID, declIndex: i}
	}
	for _, rec := range records {
		node := g.nodes[rec.ResourceID]
		for _, dep := range rec.Dependencies {
			if _, ok := g.nodes[dep]; ok {
				node.deps = append(node.deps, dep)
			}
		}
	}
	return g.finish()
}

func (g *Graph) finish() (*Graph, error) {
	for id, node := range g.nodes {
		for _, dep := range node.deps {
			g.nodes[dep].dependents = append(g.nodes[dep].dependents, id)
		}
	}
	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// CreationOrder returns ids in dependency-respecting creation order:
// dependencies first, ties broken by declaration order.
func (g *Graph) CreationOrder() []string {
	return g.order
}

// DestructionOrder returns ids in reverse dependency order: dependents
// first, safe for deletion.
func (g *Graph) DestructionOrder() []string {
	rev := make([]string, len(g.order))
	for i, id := range g.order {
		rev[len(g.order)-1-i] = id
	}
	return rev
}

// Dependencies returns the in-batch dependencies of an id.
func (g *Graph) Dependencies(id string) []string {
	if node, ok := g.nodes[id]; ok {
		return node.deps
	}
	return nil
}

// topoSort is Kahn's algorithm. Among simultaneously-ready nodes the lowest
// declaration index wins, which makes plan order deterministic for a fixed
// input.
func (g *Graph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id, node := range g.nodes {
		inDegree[id] = len(node.deps)
	}

	var ready []*graphNode
	for _, node := range g.nodes {
		if inDegree[node.id] == 0 {
			ready = append(ready, node)
		}
	}

	sorted := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		min := 0
		for i, node := range ready {
			if node.declIndex < ready[min].declIndex {
				min = i
			}
		}
		node := ready[min]
		ready = append(ready[:min], ready[min+1:]...)
		sorted = append(sorted, node.id)

		for _, dep := range node.dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, g.nodes[dep])
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		return nil, &PlanError{Code: PlanCyclicDependency, Detail: "dependency cycle detected in resource graph"}
	}
	return sorted, nil
}
