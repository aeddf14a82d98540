package renderer

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeardownOrder(t *testing.T) {
	g := NewTeardownGraph()
	var destroyed []string
	add := func(name string, deps ...string) {
		require.NoError(t, g.Add(name, func() { destroyed = append(destroyed, name) }, deps...))
	}
	add("device")
	add("swapchain", "device")
	add("render_pass", "device")
	add("framebuffers", "render_pass", "swapchain")
	add("pipelines", "render_pass", "device")
	add("frame", "framebuffers", "pipelines")

	order, err := g.Order()
	require.NoError(t, err)
	pos := make(map[string]int)
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["frame"], pos["framebuffers"])
	assert.Less(t, pos["framebuffers"], pos["swapchain"])
	assert.Less(t, pos["pipelines"], pos["render_pass"])
	assert.Equal(t, "device", order[len(order)-1])

	var calls []string
	require.NoError(t, g.Teardown(func() error {
		calls = append(calls, "idle")
		return nil
	}))
	assert.Equal(t, []string{"idle"}, calls)
	assert.Equal(t, order, destroyed)
}

func TestTeardownSkipsDestroyWhenIdleFails(t *testing.T) {
	g := NewTeardownGraph()
	destroyed := false
	require.NoError(t, g.Add("device", func() { destroyed = true }))

	err := g.Teardown(func() error { return errors.New("device lost") })
	assert.Error(t, err)
	assert.False(t, destroyed)
}

func TestTeardownRejectsBadGraphs(t *testing.T) {
	g := NewTeardownGraph()
	require.NoError(t, g.Add("a", nil, "b"))
	_, err := g.Order()
	assert.Error(t, err, "missing dependency")

	require.NoError(t, g.Add("b", nil, "a"))
	_, err = g.Order()
	assert.Error(t, err, "cycle")

	assert.Error(t, g.Add("a", nil))
}
