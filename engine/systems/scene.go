package systems

import (
	"cmp"
	"image"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/vista/engine/assets/loaders"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/math"
	"github.com/spaghettifunk/vista/engine/renderer"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

// ModelLoader decodes a model file into submeshes.
type ModelLoader interface {
	LoadModel(path string) (*loaders.Model, error)
}

type ModelHandle uuid.UUID

func (h ModelHandle) String() string {
	return uuid.UUID(h).String()
}

// MaterialInstance is the material set of a submesh and the resources written into it.
type MaterialInstance struct {
	Name string
	// Set is nil when the template has no material descriptors.
	Set       *renderer.DescriptorSet
	Constants *renderer.Buffer
	Diffuse   *renderer.Image
}

type Submesh struct {
	Vertices   *renderer.Buffer
	Indices    *renderer.Buffer
	IndexCount uint32
	Material   *MaterialInstance
}

// Model holds the GPU copies of a loaded model. Template is not owned by the model.
type Model struct {
	Handle    ModelHandle
	Name      string
	Path      string
	Template  *renderer.MaterialTemplate
	Submeshes []Submesh
}

// ModelRequest names a model file and the template it is drawn with.
type ModelRequest struct {
	Path     string
	Name     string
	Template string
}

type SceneConfig struct {
	Pipelines   *renderer.PipelineBuilder
	Resources   *renderer.ResourceFactory
	Descriptors *renderer.DescriptorAllocator
	// SceneSet is bound at set 0 for every template.
	SceneSet *renderer.DescriptorSet
	// Sampler samples every diffuse map.
	Sampler  hal.Sampler
	Models   ModelLoader
	Textures renderer.TextureDecoder
	// Jobs decodes files in parallel. Without it LoadModels decodes one file after the other.
	Jobs *JobSystem
	// Invalidate is called whenever the draw set changes so the frame command
	// buffers are recorded again.
	Invalidate func()
}

// SceneRegistry owns the material templates and models of the scene and records
// their draws.
type SceneRegistry struct {
	config SceneConfig

	templates map[string]*renderer.MaterialTemplate
	models    []*Model
	ids       *core.IdentifierPool

	// 1x1 white texture bound for materials without a diffuse map.
	fallback *renderer.Image
}

func NewSceneRegistry(config SceneConfig) *SceneRegistry {
	return &SceneRegistry{
		config:    config,
		templates: make(map[string]*renderer.MaterialTemplate),
		ids:       core.NewIdentifierPool(),
	}
}

// AddMaterialTemplate builds the template once; later calls with the same name return it.
func (s *SceneRegistry) AddMaterialTemplate(config renderer.TemplateConfig) (*renderer.MaterialTemplate, error) {
	if t, ok := s.templates[config.Name]; ok {
		return t, nil
	}
	t, err := s.config.Pipelines.Build(config)
	if err != nil {
		return nil, err
	}
	s.templates[config.Name] = t
	s.invalidate()
	return t, nil
}

func (s *SceneRegistry) invalidate() {
	if s.config.Invalidate != nil {
		s.config.Invalidate()
	}
}

func (s *SceneRegistry) Template(name string) (*renderer.MaterialTemplate, bool) {
	t, ok := s.templates[name]
	return t, ok
}

func (s *SceneRegistry) template(name string) (*renderer.MaterialTemplate, error) {
	t, ok := s.templates[name]
	if !ok {
		err := errors.Wrapf(core.ErrUnknownTemplate, "%q", name)
		core.LogError(err.Error())
		return nil, err
	}
	return t, nil
}

// decoded is a model read from disk together with the pixels of its diffuse maps.
type decoded struct {
	model    *loaders.Model
	textures map[string]*image.RGBA
}

func (s *SceneRegistry) decode(path string, t *renderer.MaterialTemplate) (*decoded, error) {
	model, err := s.config.Models.LoadModel(path)
	if err != nil {
		return nil, core.FatalInit(errors.Mark(errors.Wrapf(err, "loading model %s", path), core.ErrAssetLoad))
	}
	d := &decoded{model: model, textures: make(map[string]*image.RGBA)}
	if err := s.decodeTextures(d, t); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *SceneRegistry) decodeTextures(d *decoded, t *renderer.MaterialTemplate) error {
	if _, ok := t.Binding(renderer.DescriptorDiffuseMap); !ok {
		return nil
	}
	for _, sub := range d.model.Submeshes {
		path := sub.Material.DiffuseMap
		if path == "" {
			continue
		}
		if _, ok := d.textures[path]; ok {
			continue
		}
		if s.config.Textures == nil {
			return core.FatalInit(errors.Mark(errors.Newf("no texture decoder to load %s", path), core.ErrAssetLoad))
		}
		pixels, err := s.config.Textures.Decode(path)
		if err != nil {
			return core.FatalInit(errors.Mark(errors.Wrapf(err, "loading texture %s", path), core.ErrAssetLoad))
		}
		d.textures[path] = pixels
	}
	return nil
}

// AddModel loads the model at path and uploads it for drawing with templateName.
// An unknown template fails with ErrUnknownTemplate before anything is loaded or allocated.
func (s *SceneRegistry) AddModel(path, name, templateName string) (ModelHandle, error) {
	t, err := s.template(templateName)
	if err != nil {
		return ModelHandle{}, err
	}
	d, err := s.decode(path, t)
	if err != nil {
		core.LogError(err.Error())
		return ModelHandle{}, err
	}
	return s.upload(d, name, t)
}

// LoadModels decodes every requested file on the job system and uploads the results
// in request order on the calling goroutine. Templates are checked before any work starts.
func (s *SceneRegistry) LoadModels(requests []ModelRequest) ([]ModelHandle, error) {
	templates := make([]*renderer.MaterialTemplate, len(requests))
	for i, req := range requests {
		t, err := s.template(req.Template)
		if err != nil {
			return nil, err
		}
		templates[i] = t
	}

	results := make([]*decoded, len(requests))
	errs := make([]error, len(requests))
	if s.config.Jobs == nil {
		for i, req := range requests {
			results[i], errs[i] = s.decode(req.Path, templates[i])
		}
	} else {
		var wg sync.WaitGroup
		for i, req := range requests {
			i, req := i, req
			wg.Add(1)
			err := s.config.Jobs.Submit(JobTask{
				Name:    "decode " + req.Path,
				OnStart: func() (interface{}, error) { return s.decode(req.Path, templates[i]) },
				OnComplete: func(result interface{}) {
					results[i] = result.(*decoded)
				},
				OnFailure:            func(err error) { errs[i] = err },
				OnCompletionCallback: wg.Done,
			})
			if err != nil {
				wg.Done()
				errs[i] = err
			}
		}
		wg.Wait()
	}

	var combined error
	for _, err := range errs {
		combined = errors.CombineErrors(combined, err)
	}
	if combined != nil {
		return nil, combined
	}

	handles := make([]ModelHandle, 0, len(requests))
	for i, req := range requests {
		h, err := s.upload(results[i], req.Name, templates[i])
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// AddMesh uploads geometry built in code, such as math.Quad, as a single submesh model.
func (s *SceneRegistry) AddMesh(name string, vertices []math.Vertex, indices []uint32, material loaders.Material, templateName string) (ModelHandle, error) {
	t, err := s.template(templateName)
	if err != nil {
		return ModelHandle{}, err
	}
	d := &decoded{
		model: &loaders.Model{
			Name:      name,
			Submeshes: []loaders.Submesh{{Vertices: vertices, Indices: indices, Material: material}},
		},
		textures: make(map[string]*image.RGBA),
	}
	if err := s.decodeTextures(d, t); err != nil {
		core.LogError(err.Error())
		return ModelHandle{}, err
	}
	return s.upload(d, name, t)
}

func (s *SceneRegistry) upload(d *decoded, name string, t *renderer.MaterialTemplate) (ModelHandle, error) {
	m := &Model{
		Name:     name,
		Path:     d.model.Path,
		Template: t,
	}
	materials := make(map[string]*MaterialInstance)
	for _, sub := range d.model.Submeshes {
		if len(sub.Indices) == 0 {
			continue
		}
		gpu, err := s.uploadSubmesh(sub)
		if err != nil {
			s.release(m, materials)
			return ModelHandle{}, err
		}
		m.Submeshes = append(m.Submeshes, gpu)

		mat, ok := materials[sub.Material.Name]
		if !ok {
			if mat, err = s.createMaterial(sub.Material, d.textures, t); err != nil {
				if mat != nil {
					materials[sub.Material.Name] = mat
				}
				s.release(m, materials)
				return ModelHandle{}, err
			}
			materials[sub.Material.Name] = mat
		}
		m.Submeshes[len(m.Submeshes)-1].Material = mat
	}
	if len(m.Submeshes) == 0 {
		return ModelHandle{}, errors.Mark(errors.Newf("model %q has no geometry", name), core.ErrAssetLoad)
	}

	m.Handle = ModelHandle(s.ids.Acquire(m))
	s.models = append(s.models, m)
	s.invalidate()
	core.LogInfo("Model '%s' added with template '%s' (%d submeshes).", name, t.Name, len(m.Submeshes))
	return m.Handle, nil
}

func (s *SceneRegistry) uploadSubmesh(sub loaders.Submesh) (Submesh, error) {
	res := s.config.Resources
	vertexData := math.VerticesBytes(sub.Vertices)
	vertices, err := res.CreateBuffer(hal.BufferUsageVertex, uint64(len(vertexData)))
	if err != nil {
		return Submesh{}, err
	}
	if err := res.UpdateAndTransfer(vertices, vertexData); err != nil {
		res.DestroyBuffer(vertices)
		return Submesh{}, err
	}

	indexData := math.IndicesBytes(sub.Indices)
	indices, err := res.CreateBuffer(hal.BufferUsageIndex, uint64(len(indexData)))
	if err != nil {
		res.DestroyBuffer(vertices)
		return Submesh{}, err
	}
	if err := res.UpdateAndTransfer(indices, indexData); err != nil {
		res.DestroyBuffer(vertices)
		res.DestroyBuffer(indices)
		return Submesh{}, err
	}
	return Submesh{Vertices: vertices, Indices: indices, IndexCount: uint32(len(sub.Indices))}, nil
}

// createMaterial allocates the material set and writes it in the template's descriptor order.
func (s *SceneRegistry) createMaterial(mat loaders.Material, textures map[string]*image.RGBA, t *renderer.MaterialTemplate) (*MaterialInstance, error) {
	inst := &MaterialInstance{Name: mat.Name}
	if t.MaterialLayout == nil {
		return inst, nil
	}

	set, err := s.config.Descriptors.Allocate(t.MaterialLayout)
	if err != nil {
		return nil, err
	}
	inst.Set = set

	res := s.config.Resources
	for i, kind := range t.Ordering {
		binding := uint32(i)
		switch kind {
		case renderer.DescriptorConstants:
			data := mat.Uniforms().Bytes()
			if inst.Constants, err = res.CreateBuffer(hal.BufferUsageUniform, uint64(len(data))); err != nil {
				return inst, err
			}
			if err := res.UpdateAndTransfer(inst.Constants, data); err != nil {
				return inst, err
			}
			if err := s.config.Descriptors.WriteSet(set, binding, renderer.BufferResource{Buffer: inst.Constants}); err != nil {
				return inst, err
			}
		case renderer.DescriptorDiffuseMap:
			img, err := s.diffuseImage(mat, textures)
			if err != nil {
				return inst, err
			}
			if img != s.fallback {
				inst.Diffuse = img
			}
			if err := s.config.Descriptors.WriteSet(set, binding, renderer.ImageResource{Image: img, Sampler: s.config.Sampler}); err != nil {
				return inst, err
			}
		}
	}
	return inst, nil
}

func (s *SceneRegistry) diffuseImage(mat loaders.Material, textures map[string]*image.RGBA) (*renderer.Image, error) {
	if pixels, ok := textures[mat.DiffuseMap]; ok && mat.DiffuseMap != "" {
		b := pixels.Bounds()
		img, err := s.config.Resources.CreateImageFromPixels(uint32(b.Dx()), uint32(b.Dy()), pixels.Pix, hal.FormatR8G8B8A8Srgb)
		if err != nil {
			return nil, core.FatalInit(err)
		}
		img.Path = mat.DiffuseMap
		return img, nil
	}
	if s.fallback == nil {
		img, err := s.config.Resources.CreateImageFromPixels(1, 1, []byte{255, 255, 255, 255}, hal.FormatR8G8B8A8Srgb)
		if err != nil {
			return nil, core.FatalInit(err)
		}
		s.fallback = img
	}
	return s.fallback, nil
}

func (s *SceneRegistry) release(m *Model, materials map[string]*MaterialInstance) {
	res := s.config.Resources
	for _, sub := range m.Submeshes {
		res.DestroyBuffer(sub.Vertices)
		res.DestroyBuffer(sub.Indices)
	}
	for _, mat := range materials {
		if mat.Constants != nil {
			res.DestroyBuffer(mat.Constants)
		}
		if mat.Diffuse != nil {
			res.DestroyImage(mat.Diffuse)
		}
	}
}

// Models returns the models in insertion order.
func (s *SceneRegistry) Models() []*Model {
	return append([]*Model(nil), s.models...)
}

func (s *SceneRegistry) Model(h ModelHandle) (*Model, bool) {
	owner, ok := s.ids.Owner(uuid.UUID(h))
	if !ok {
		return nil, false
	}
	return owner.(*Model), true
}

// Render records the draws of every model. Models are grouped by template registration
// order and keep their insertion order within a template; pipeline and scene set are
// bound once per template.
func (s *SceneRegistry) Render(rec hal.CommandRecorder, extent hal.Extent2D) error {
	ordered := s.Models()
	slices.SortStableFunc(ordered, func(a, b *Model) int {
		return cmp.Compare(a.Template.Index, b.Template.Index)
	})

	var current *renderer.MaterialTemplate
	for _, m := range ordered {
		t := m.Template
		if t != current {
			if t.Pipeline == 0 {
				return errors.Newf("template %q has no pipeline", t.Name)
			}
			current = t
			rec.BindPipeline(t.Pipeline)
			rec.BindDescriptorSets(t.PipelineLayout, 0, []hal.DescriptorSet{s.config.SceneSet.Handle})
			if t.DynamicViewport {
				rec.SetViewport(extent)
			}
		}
		for _, sub := range m.Submeshes {
			if sub.Material != nil && sub.Material.Set != nil {
				rec.BindDescriptorSets(t.PipelineLayout, 1, []hal.DescriptorSet{sub.Material.Set.Handle})
			}
			rec.BindVertexBuffer(sub.Vertices.Handle, 0)
			rec.BindIndexBuffer(sub.Indices.Handle, 0)
			rec.DrawIndexed(sub.IndexCount, 1)
		}
	}
	return nil
}

// Destroy releases the buffers and images of every model. Descriptor sets go away with
// the pool and templates with the pipeline builder.
func (s *SceneRegistry) Destroy() {
	core.LogInfo("Destroying %d models...", len(s.models))
	for i := len(s.models) - 1; i >= 0; i-- {
		m := s.models[i]
		materials := make(map[string]*MaterialInstance)
		for _, sub := range m.Submeshes {
			if sub.Material != nil {
				materials[sub.Material.Name] = sub.Material
			}
		}
		s.release(m, materials)
		if err := s.ids.Release(uuid.UUID(m.Handle)); err != nil {
			core.LogWarn(err.Error())
		}
	}
	s.models = nil
	if s.fallback != nil {
		s.config.Resources.DestroyImage(s.fallback)
		s.fallback = nil
	}
	s.templates = make(map[string]*renderer.MaterialTemplate)
}

var _ renderer.Scene = (*SceneRegistry)(nil)
