package systems

import (
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vista/engine/assets/loaders"
	"github.com/spaghettifunk/vista/engine/config"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/math"
	"github.com/spaghettifunk/vista/engine/renderer"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
	"github.com/spaghettifunk/vista/engine/renderer/hal/haltest"
)

type anyShader struct{}

func (anyShader) LoadSPIRV(path string) ([]uint32, error) {
	return []uint32{0x07230203}, nil
}

type stubModels struct {
	mutex  sync.Mutex
	models map[string]*loaders.Model
	calls  []string
}

func (s *stubModels) LoadModel(path string) (*loaders.Model, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calls = append(s.calls, path)
	m, ok := s.models[path]
	if !ok {
		return nil, errors.Newf("open %s: no such file", path)
	}
	return m, nil
}

type stubTextures map[string]*image.RGBA

func (s stubTextures) Decode(path string) (*image.RGBA, error) {
	img, ok := s[path]
	if !ok {
		return nil, errors.Newf("open %s: no such file", path)
	}
	return img, nil
}

func triangleModel(name string, submeshes int, diffuse string) *loaders.Model {
	m := &loaders.Model{Name: name, Path: name + ".obj"}
	for i := 0; i < submeshes; i++ {
		mat := loaders.DefaultMaterial()
		mat.Name = name
		mat.DiffuseMap = diffuse
		m.Submeshes = append(m.Submeshes, loaders.Submesh{
			Vertices: []math.Vertex{
				{Position: mgl32.Vec3{0, -0.5, 0}},
				{Position: mgl32.Vec3{0.5, 0.5, 0}},
				{Position: mgl32.Vec3{-0.5, 0.5, 0}},
			},
			Indices:  []uint32{0, 1, 2},
			Material: mat,
		})
	}
	return m
}

type sceneFixture struct {
	dev           *haltest.Device
	renderer      *renderer.Renderer
	models        *stubModels
	scene         *SceneRegistry
	invalidations int
}

func newSceneFixture(t *testing.T, jobs *JobSystem) *sceneFixture {
	t.Helper()
	inst := &haltest.Instance{Devices: []hal.PhysicalDeviceInfo{{
		Name: "gpu",
		Type: hal.DeviceTypeDiscreteGPU,
		QueueFamilies: []hal.QueueFamily{
			{Index: 0, Count: 16, Graphics: true, Compute: true, Transfer: true, Present: true},
		},
		Extensions:        []string{renderer.SwapchainExtensionName},
		SamplerAnisotropy: true,
		DeviceLocalMemory: 1 << 30,
		Surface:           haltest.DefaultSurface(),
	}}}

	pixels := image.NewRGBA(image.Rect(0, 0, 2, 2))
	pixels.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	textures := stubTextures{"wood.png": pixels}

	r, err := renderer.New(inst, config.Default(), anyShader{}, textures)
	require.NoError(t, err)

	models := &stubModels{models: map[string]*loaders.Model{
		"room.obj":  triangleModel("room", 2, "wood.png"),
		"plain.obj": triangleModel("plain", 1, ""),
		"crate.obj": triangleModel("crate", 1, "wood.png"),
	}}
	f := &sceneFixture{dev: inst.Opened, renderer: r, models: models}
	f.scene = NewSceneRegistry(SceneConfig{
		Pipelines:   r.Pipelines(),
		Resources:   r.Resources(),
		Descriptors: r.Descriptors(),
		SceneSet:    r.SceneSet(),
		Sampler:     r.Sampler(),
		Models:      models,
		Textures:    textures,
		Jobs:        jobs,
		Invalidate: func() {
			f.invalidations++
			r.Invalidate()
		},
	})
	return f
}

func (f *sceneFixture) addTemplates(t *testing.T) (*renderer.MaterialTemplate, *renderer.MaterialTemplate) {
	t.Helper()
	triangle, err := f.scene.AddMaterialTemplate(renderer.TemplateConfig{
		Name:     "triangle",
		Ordering: []renderer.DescriptorKind{renderer.DescriptorConstants},
	})
	require.NoError(t, err)
	textured, err := f.scene.AddMaterialTemplate(renderer.TemplateConfig{
		Name:            "textured",
		Ordering:        []renderer.DescriptorKind{renderer.DescriptorConstants, renderer.DescriptorDiffuseMap},
		DynamicViewport: true,
	})
	require.NoError(t, err)
	return triangle, textured
}

func (f *sceneFixture) record(t *testing.T) []string {
	t.Helper()
	pool, err := f.dev.CreateCommandPool(hal.QueueGraphics)
	require.NoError(t, err)
	cbs, err := f.dev.AllocateCommandBuffers(pool, 1)
	require.NoError(t, err)
	rec, err := f.dev.Begin(cbs[0], 0)
	require.NoError(t, err)
	require.NoError(t, f.scene.Render(rec, hal.Extent2D{Width: 800, Height: 600}))
	require.NoError(t, rec.End())
	return f.dev.Commands[cbs[0]]
}

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func countPrefix(commands []string, prefix string) int {
	n := 0
	for _, c := range commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestAddMaterialTemplateIsIdempotent(t *testing.T) {
	f := newSceneFixture(t, nil)
	first, _ := f.addTemplates(t)
	again, err := f.scene.AddMaterialTemplate(renderer.TemplateConfig{Name: "triangle"})
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 2, f.dev.Created("Pipeline"))

	got, ok := f.scene.Template("textured")
	require.True(t, ok)
	assert.True(t, got.DynamicViewport)
}

func TestAddModelUnknownTemplateAllocatesNothing(t *testing.T) {
	f := newSceneFixture(t, nil)
	f.addTemplates(t)
	usage := f.renderer.Descriptors().Usage()
	f.dev.Reset()

	_, err := f.scene.AddModel("room.obj", "room", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownTemplate))
	assert.Empty(t, f.models.calls, "nothing is loaded")
	assert.Empty(t, f.dev.Calls, "no driver call is made")
	assert.Equal(t, usage, f.renderer.Descriptors().Usage())
	assert.Empty(t, f.scene.Models())
}

func TestAddModelUploadsGeometryAndMaterials(t *testing.T) {
	f := newSceneFixture(t, nil)
	f.addTemplates(t)

	h, err := f.scene.AddModel("room.obj", "room", "textured")
	require.NoError(t, err)
	m, ok := f.scene.Model(h)
	require.True(t, ok)
	assert.Equal(t, "room", m.Name)
	require.Len(t, m.Submeshes, 2)

	sub := m.Submeshes[0]
	assert.Equal(t, uint32(3), sub.IndexCount)
	assert.Equal(t, math.IndicesBytes([]uint32{0, 1, 2}), f.dev.Buffers[sub.Indices.Handle].Data)
	assert.Same(t, m.Submeshes[0].Material, m.Submeshes[1].Material, "submeshes share a material by name")

	mat := sub.Material
	require.NotNil(t, mat.Set)
	require.NotNil(t, mat.Diffuse)
	assert.Equal(t, "wood.png", mat.Diffuse.Path)
	assert.Equal(t, loaders.DefaultMaterial().Uniforms().Bytes(), f.dev.Buffers[mat.Constants.Handle].Data)

	writes := f.dev.Writes[mat.Set.Handle]
	require.Len(t, writes, 2)
	assert.Equal(t, hal.DescriptorTypeUniformBuffer, writes[0].Type)
	assert.Equal(t, hal.DescriptorTypeCombinedImageSampler, writes[1].Type)
	assert.Equal(t, uint32(1), writes[1].Binding)
	assert.Equal(t, f.renderer.Sampler(), writes[1].Sampler)
}

func TestAddModelMissingFileIsFatal(t *testing.T) {
	f := newSceneFixture(t, nil)
	f.addTemplates(t)

	_, err := f.scene.AddModel("nowhere.obj", "nowhere", "triangle")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAssetLoad))
	assert.True(t, core.IsFatal(err))
}

func TestRenderBindsEachTemplateOnce(t *testing.T) {
	f := newSceneFixture(t, nil)
	triangle, textured := f.addTemplates(t)

	for _, add := range []struct{ path, name, template string }{
		{"crate.obj", "crate-1", "textured"},
		{"plain.obj", "plain-1", "triangle"},
		{"room.obj", "room", "textured"},
		{"plain.obj", "plain-2", "triangle"},
	} {
		_, err := f.scene.AddModel(add.path, add.name, add.template)
		require.NoError(t, err)
	}

	commands := f.record(t)
	assert.Equal(t, 2, countPrefix(commands, "BindPipeline"))
	assert.Equal(t, 5, countPrefix(commands, "DrawIndexed 3 1"))
	assert.Equal(t, 1, countPrefix(commands, "SetViewport 800x600"))

	var pipelines []string
	for _, c := range commands {
		if strings.HasPrefix(c, "BindPipeline") {
			pipelines = append(pipelines, c)
		}
	}
	assert.Equal(t, []string{
		"BindPipeline " + itoa(uint64(triangle.Pipeline)),
		"BindPipeline " + itoa(uint64(textured.Pipeline)),
	}, pipelines, "templates are drawn in registration order")

	names := make([]string, 0, 4)
	for _, m := range f.scene.Models() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"crate-1", "plain-1", "room", "plain-2"}, names, "models keep insertion order")
}

func TestRenderBindsSceneSetAtZero(t *testing.T) {
	f := newSceneFixture(t, nil)
	triangle, _ := f.addTemplates(t)
	_, err := f.scene.AddModel("plain.obj", "plain", "triangle")
	require.NoError(t, err)

	commands := f.record(t)
	sceneSet := "BindDescriptorSets " + itoa(uint64(triangle.PipelineLayout)) + " 0 [" + itoa(uint64(f.renderer.SceneSet().Handle)) + "]"
	assert.Contains(t, commands, sceneSet)
	assert.Equal(t, 2, countPrefix(commands, "BindDescriptorSets"))
}

func TestAddMeshUsesFallbackTexture(t *testing.T) {
	f := newSceneFixture(t, nil)
	f.addTemplates(t)
	images := f.dev.Created("Image")

	vertices, indices := math.Quad()
	h1, err := f.scene.AddMesh("quad-1", vertices, indices, loaders.DefaultMaterial(), "textured")
	require.NoError(t, err)
	_, err = f.scene.AddMesh("quad-2", vertices, indices, loaders.DefaultMaterial(), "textured")
	require.NoError(t, err)

	assert.Equal(t, images+1, f.dev.Created("Image"), "one shared fallback texture")
	m, _ := f.scene.Model(h1)
	assert.Equal(t, uint32(6), m.Submeshes[0].IndexCount)
	assert.Nil(t, m.Submeshes[0].Material.Diffuse)
}

func TestLoadModelsOnJobSystem(t *testing.T) {
	jobs, err := NewJobSystem(2, 4)
	require.NoError(t, err)
	defer jobs.Shutdown()

	f := newSceneFixture(t, jobs)
	f.addTemplates(t)

	handles, err := f.scene.LoadModels([]ModelRequest{
		{Path: "room.obj", Name: "room", Template: "textured"},
		{Path: "plain.obj", Name: "plain", Template: "triangle"},
		{Path: "crate.obj", Name: "crate", Template: "textured"},
	})
	require.NoError(t, err)
	require.Len(t, handles, 3)
	for i, name := range []string{"room", "plain", "crate"} {
		m, ok := f.scene.Model(handles[i])
		require.True(t, ok)
		assert.Equal(t, name, m.Name)
	}
	assert.Len(t, f.models.calls, 3)

	_, err = f.scene.LoadModels([]ModelRequest{
		{Path: "room.obj", Name: "again", Template: "textured"},
		{Path: "plain.obj", Name: "bad", Template: "missing"},
	})
	assert.True(t, errors.Is(err, core.ErrUnknownTemplate))
	assert.Len(t, f.models.calls, 3, "templates are checked before decoding starts")

	_, err = f.scene.LoadModels([]ModelRequest{{Path: "nowhere.obj", Name: "x", Template: "triangle"}})
	assert.True(t, errors.Is(err, core.ErrAssetLoad))
}

func TestSceneDestroyReleasesModels(t *testing.T) {
	f := newSceneFixture(t, nil)
	f.addTemplates(t)
	buffers, images := f.dev.Live("Buffer"), f.dev.Live("Image")

	_, err := f.scene.AddModel("room.obj", "room", "textured")
	require.NoError(t, err)
	vertices, indices := math.Quad()
	_, err = f.scene.AddMesh("quad", vertices, indices, loaders.DefaultMaterial(), "textured")
	require.NoError(t, err)
	assert.Greater(t, f.dev.Live("Buffer"), buffers)

	f.scene.Destroy()
	assert.Equal(t, buffers, f.dev.Live("Buffer"))
	assert.Equal(t, images, f.dev.Live("Image"))
	assert.Empty(t, f.scene.Models())

	require.NoError(t, f.renderer.SetScene(f.scene))
	require.NoError(t, f.renderer.Shutdown())
}

func TestModelsAddedAfterFirstFrameAreDrawn(t *testing.T) {
	f := newSceneFixture(t, nil)
	f.addTemplates(t)
	assert.Equal(t, 2, f.invalidations)
	require.NoError(t, f.renderer.SetScene(f.scene))

	_, err := f.scene.AddModel("plain.obj", "plain", "triangle")
	require.NoError(t, err)
	require.NoError(t, f.renderer.DrawFrame())
	cb := f.renderer.Frame().CommandBuffers()[0]
	assert.Equal(t, 1, countPrefix(f.dev.Commands[cb], "DrawIndexed"))

	_, err = f.scene.AddModel("crate.obj", "crate", "textured")
	require.NoError(t, err)
	require.NoError(t, f.renderer.DrawFrame())
	assert.Equal(t, 2, countPrefix(f.dev.Commands[cb], "DrawIndexed"))

	vertices, indices := math.Quad()
	_, err = f.scene.AddMesh("quad", vertices, indices, loaders.DefaultMaterial(), "triangle")
	require.NoError(t, err)
	require.NoError(t, f.renderer.DrawFrame())
	assert.Equal(t, 3, countPrefix(f.dev.Commands[cb], "DrawIndexed"))
	assert.Equal(t, 5, f.invalidations)

	// Failed additions leave the recorded frames alone.
	_, err = f.scene.AddModel("nowhere.obj", "nowhere", "triangle")
	require.Error(t, err)
	_, err = f.scene.AddMaterialTemplate(renderer.TemplateConfig{Name: "triangle"})
	require.NoError(t, err)
	assert.Equal(t, 5, f.invalidations)
}

func TestLoadModelsInvalidatesOncePerModel(t *testing.T) {
	f := newSceneFixture(t, nil)
	f.addTemplates(t)
	before := f.invalidations

	_, err := f.scene.LoadModels([]ModelRequest{
		{Path: "plain.obj", Name: "plain", Template: "triangle"},
		{Path: "crate.obj", Name: "crate", Template: "textured"},
	})
	require.NoError(t, err)
	assert.Equal(t, before+2, f.invalidations)
}
