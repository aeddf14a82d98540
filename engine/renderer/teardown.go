package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/core"
)

type teardownNode struct {
	name      string
	destroy   func()
	dependsOn []string
}

// TeardownGraph destroys GPU objects in dependency order. A node that depends on
// another uses it, so it is destroyed first.
type TeardownGraph struct {
	nodes map[string]*teardownNode
	order []string
}

func NewTeardownGraph() *TeardownGraph {
	return &TeardownGraph{
		nodes: make(map[string]*teardownNode),
	}
}

// Add registers name, destroyed by fn once every node depending on it is gone.
func (g *TeardownGraph) Add(name string, fn func(), dependsOn ...string) error {
	if _, ok := g.nodes[name]; ok {
		return errors.Newf("teardown node %q registered twice", name)
	}
	g.nodes[name] = &teardownNode{
		name:      name,
		destroy:   fn,
		dependsOn: dependsOn,
	}
	g.order = append(g.order, name)
	return nil
}

func (g *TeardownGraph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Order returns the destruction order: dependents before their dependencies, ties in
// registration order.
func (g *TeardownGraph) Order() ([]string, error) {
	// dependents[x] counts the live nodes that still use x.
	dependents := make(map[string]int, len(g.nodes))
	for _, name := range g.order {
		for _, dep := range g.nodes[name].dependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, errors.Newf("teardown node %q depends on unregistered %q", name, dep)
			}
			dependents[dep]++
		}
	}

	done := make(map[string]bool, len(g.nodes))
	out := make([]string, 0, len(g.nodes))
	for len(out) < len(g.nodes) {
		progressed := false
		// Walk newest first so later registrations are torn down earlier on ties.
		for i := len(g.order) - 1; i >= 0; i-- {
			name := g.order[i]
			if done[name] || dependents[name] > 0 {
				continue
			}
			done[name] = true
			out = append(out, name)
			for _, dep := range g.nodes[name].dependsOn {
				dependents[dep]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, errors.New("teardown graph has a dependency cycle")
		}
	}
	return out, nil
}

// Teardown waits for the device to go idle and then destroys every node. Nothing is
// destroyed if the wait fails.
func (g *TeardownGraph) Teardown(waitIdle func() error) error {
	order, err := g.Order()
	if err != nil {
		return err
	}
	if err := waitIdle(); err != nil {
		core.LogError("device did not go idle, skipping teardown: %s", err)
		return errors.Wrap(err, "waiting for device idle before teardown")
	}
	for _, name := range order {
		core.LogDebug("destroying %s", name)
		if fn := g.nodes[name].destroy; fn != nil {
			fn()
		}
	}
	g.nodes = make(map[string]*teardownNode)
	g.order = nil
	return nil
}
