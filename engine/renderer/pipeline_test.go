package renderer

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
	"github.com/spaghettifunk/vista/engine/renderer/hal/haltest"
)

type stubShaders map[string][]uint32

func (s stubShaders) LoadSPIRV(path string) ([]uint32, error) {
	code, ok := s[path]
	if !ok {
		return nil, errors.Wrapf(core.ErrShaderMissing, "%s", path)
	}
	return code, nil
}

func shadersFor(dir string, names ...string) stubShaders {
	s := stubShaders{}
	for _, n := range names {
		s[ShaderPath(dir, n, hal.ShaderStageVertex)] = []uint32{0x07230203}
		s[ShaderPath(dir, n, hal.ShaderStageFragment)] = []uint32{0x07230203}
	}
	return s
}

func newTestBuilder(t *testing.T, shaders ShaderLoader) (*haltest.Device, *PipelineBuilder) {
	t.Helper()
	dev := haltest.NewDevice()
	a, err := NewDescriptorAllocator(dev, PoolCapacity{UniformBuffers: 10, CombinedImageSamplers: 10, MaxSets: 10})
	require.NoError(t, err)
	scene, err := a.CreateLayout([]hal.DescriptorBinding{uboBinding})
	require.NoError(t, err)
	pass, err := dev.CreateRenderPass(hal.RenderPassDescriptor{ColorFormat: hal.FormatB8G8R8A8Srgb})
	require.NoError(t, err)

	b := NewPipelineBuilder(dev, a, shaders, "shaders", scene)
	b.SetTarget(pass, hal.Extent2D{Width: 1280, Height: 720})
	return dev, b
}

func TestShaderPath(t *testing.T) {
	assert.Equal(t, filepath.Join("assets", "shaders", "triangle_vert.spv"), ShaderPath(filepath.Join("assets", "shaders"), "triangle", hal.ShaderStageVertex))
	assert.Equal(t, filepath.Join("shaders", "triangle_frag.spv"), ShaderPath("shaders", "triangle", hal.ShaderStageFragment))
}

func TestBuildTemplate(t *testing.T) {
	dev, b := newTestBuilder(t, shadersFor("shaders", "textured"))

	tmpl, err := b.Build(TemplateConfig{Name: "textured", Ordering: []DescriptorKind{DescriptorConstants, DescriptorDiffuseMap}})
	require.NoError(t, err)

	// Set layouts come before the pipeline layout, which comes before the pipeline.
	layout := dev.Index("CreateDescriptorSetLayout")
	pipelineLayout := dev.Index("CreatePipelineLayout")
	pipeline := -1
	for i, c := range dev.Calls {
		if c == "CreatePipeline" {
			pipeline = i
		}
	}
	assert.True(t, layout < pipelineLayout && pipelineLayout < pipeline)

	require.Len(t, tmpl.Layouts, 2)
	assert.Equal(t, tmpl.Layouts, dev.PipelineLayout[tmpl.PipelineLayout])
	assert.Equal(t, []hal.DescriptorBinding{
		{Binding: 0, Type: hal.DescriptorTypeUniformBuffer, Count: 1, Stages: hal.ShaderStageFragment},
		{Binding: 1, Type: hal.DescriptorTypeCombinedImageSampler, Count: 1, Stages: hal.ShaderStageFragment},
	}, tmpl.MaterialLayout.Bindings)

	desc := dev.Pipelines[tmpl.Pipeline]
	assert.Equal(t, hal.TopologyTriangleList, desc.Topology)
	assert.Equal(t, hal.CullModeBack, desc.CullMode)
	assert.Equal(t, hal.FrontFaceCounterClockwise, desc.FrontFace)
	assert.Equal(t, uint32(1), desc.Samples)
	assert.False(t, desc.BlendEnable)
	assert.Equal(t, hal.Extent2D{Width: 1280, Height: 720}, desc.Extent)
	assert.Equal(t, uint32(32), desc.VertexLayout.Stride)

	binding, ok := tmpl.Binding(DescriptorDiffuseMap)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), binding)
}

func TestBuildIsCached(t *testing.T) {
	dev, b := newTestBuilder(t, shadersFor("shaders", "triangle"))

	first, err := b.Build(TemplateConfig{Name: "triangle", Ordering: []DescriptorKind{DescriptorConstants}})
	require.NoError(t, err)
	second, err := b.Build(TemplateConfig{Name: "triangle", Ordering: []DescriptorKind{DescriptorConstants}})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dev.Created("Pipeline"))
	assert.Len(t, b.Templates(), 1)
}

func TestBuildMissingShader(t *testing.T) {
	dev, b := newTestBuilder(t, stubShaders{})

	_, err := b.Build(TemplateConfig{Name: "ghost"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrShaderMissing))
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, 0, dev.Created("ShaderModule"))
	assert.Equal(t, 0, dev.Created("PipelineLayout"))
	_, ok := b.Get("ghost")
	assert.False(t, ok)
}

func TestRebuildSkipsDynamicTemplates(t *testing.T) {
	dev, b := newTestBuilder(t, shadersFor("shaders", "static", "dynamic"))

	static, err := b.Build(TemplateConfig{Name: "static"})
	require.NoError(t, err)
	dynamic, err := b.Build(TemplateConfig{Name: "dynamic", DynamicViewport: true})
	require.NoError(t, err)
	oldDynamic := dynamic.Pipeline

	require.NoError(t, b.Rebuild(hal.Extent2D{Width: 640, Height: 480}))
	assert.Equal(t, hal.Extent2D{Width: 640, Height: 480}, dev.Pipelines[static.Pipeline].Extent)
	assert.Equal(t, oldDynamic, dynamic.Pipeline)
	assert.Equal(t, 2, dev.Live("Pipeline"))
	assert.Equal(t, 1, dev.Destroyed("Pipeline"))
}

func TestReload(t *testing.T) {
	shaders := shadersFor("shaders", "triangle")
	dev, b := newTestBuilder(t, shaders)
	tmpl, err := b.Build(TemplateConfig{Name: "triangle"})
	require.NoError(t, err)
	old := tmpl.Pipeline

	require.NoError(t, b.Reload("triangle"))
	assert.NotEqual(t, old, tmpl.Pipeline)
	assert.Equal(t, 1, dev.Live("Pipeline"))
	assert.Equal(t, 2, dev.Live("ShaderModule"))

	// A broken binary keeps the current pipeline.
	delete(shaders, ShaderPath("shaders", "triangle", hal.ShaderStageFragment))
	current := tmpl.Pipeline
	assert.Error(t, b.Reload("triangle"))
	assert.Equal(t, current, tmpl.Pipeline)

	assert.True(t, errors.Is(b.Reload("unknown"), core.ErrUnknownTemplate))
}

func TestPipelineBuilderDestroy(t *testing.T) {
	dev, b := newTestBuilder(t, shadersFor("shaders", "a", "b"))
	_, err := b.Build(TemplateConfig{Name: "a"})
	require.NoError(t, err)
	_, err = b.Build(TemplateConfig{Name: "b", Ordering: []DescriptorKind{DescriptorDiffuseMap}})
	require.NoError(t, err)

	b.Destroy()
	assert.Equal(t, 0, dev.Live("Pipeline"))
	assert.Equal(t, 0, dev.Live("PipelineLayout"))
	assert.Equal(t, 0, dev.Live("ShaderModule"))
	// Set layouts are still owned by the allocator.
	assert.Equal(t, 2, dev.Live("DescriptorSetLayout"))
}

func TestParseDescriptorKind(t *testing.T) {
	k, err := ParseDescriptorKind("diffuse_map")
	require.NoError(t, err)
	assert.Equal(t, DescriptorDiffuseMap, k)
	_, err = ParseDescriptorKind("normal_map")
	assert.Error(t, err)
}
