package renderer

import (
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/math"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

// DescriptorKind is one entry of a template's material descriptor ordering. The
// position of the entry in the ordering is its binding number.
type DescriptorKind uint8

const (
	// DescriptorConstants is the material uniform block (diffuse, specular, shininess).
	DescriptorConstants DescriptorKind = iota
	// DescriptorDiffuseMap is the diffuse texture sampled with the scene sampler.
	DescriptorDiffuseMap
)

func (k DescriptorKind) String() string {
	switch k {
	case DescriptorConstants:
		return "constants"
	case DescriptorDiffuseMap:
		return "diffuse_map"
	default:
		return fmt.Sprintf("DescriptorKind(%d)", uint8(k))
	}
}

func ParseDescriptorKind(name string) (DescriptorKind, error) {
	switch name {
	case "constants":
		return DescriptorConstants, nil
	case "diffuse_map":
		return DescriptorDiffuseMap, nil
	}
	return 0, errors.Newf("unknown descriptor kind %q", name)
}

func (k DescriptorKind) binding(index int) hal.DescriptorBinding {
	b := hal.DescriptorBinding{Binding: uint32(index), Count: 1, Stages: hal.ShaderStageFragment}
	if k == DescriptorDiffuseMap {
		b.Type = hal.DescriptorTypeCombinedImageSampler
	} else {
		b.Type = hal.DescriptorTypeUniformBuffer
	}
	return b
}

type TemplateConfig struct {
	Name string
	// Ordering lists the material descriptors bound at set 1.
	Ordering []DescriptorKind
	// DynamicViewport templates set viewport and scissor while recording instead of
	// baking the swapchain extent into the pipeline.
	DynamicViewport bool
}

// MaterialTemplate is a pipeline together with everything needed to bind it.
type MaterialTemplate struct {
	Name            string
	Ordering        []DescriptorKind
	DynamicViewport bool
	// MaterialLayout is nil when the template has no material descriptors.
	MaterialLayout *DescriptorLayout
	// Layouts is what the pipeline layout was built from: the scene layout first.
	Layouts        []hal.DescriptorSetLayout
	PipelineLayout hal.PipelineLayout
	Pipeline       hal.Pipeline
	// Index is the registration order of the template.
	Index int

	vertex   hal.ShaderModule
	fragment hal.ShaderModule
}

// Binding returns the binding number of kind in the material set.
func (t *MaterialTemplate) Binding(kind DescriptorKind) (uint32, bool) {
	for i, k := range t.Ordering {
		if k == kind {
			return uint32(i), true
		}
	}
	return 0, false
}

// ShaderLoader reads a SPIR-V binary.
type ShaderLoader interface {
	LoadSPIRV(path string) ([]uint32, error)
}

// ShaderPath is where the binary of the given stage of a template lives.
func ShaderPath(dir, name string, stage hal.ShaderStage) string {
	suffix := "vert"
	if stage == hal.ShaderStageFragment {
		suffix = "frag"
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.spv", name, suffix))
}

// VertexLayout describes math.Vertex to the pipeline.
func VertexLayout() hal.VertexLayout {
	return hal.VertexLayout{
		Stride: math.VertexStride,
		Attributes: []hal.VertexAttribute{
			{Location: 0, Format: hal.FormatR32G32B32Sfloat, Offset: math.VertexPositionOffset},
			{Location: 1, Format: hal.FormatR32G32B32Sfloat, Offset: math.VertexColorOffset},
			{Location: 2, Format: hal.FormatR32G32Sfloat, Offset: math.VertexTexCoordOffset},
		},
	}
}

// PipelineBuilder builds and caches material templates by name.
type PipelineBuilder struct {
	device      hal.Device
	descriptors *DescriptorAllocator
	shaders     ShaderLoader
	shaderDir   string
	sceneLayout *DescriptorLayout

	renderPass hal.RenderPass
	extent     hal.Extent2D

	templates map[string]*MaterialTemplate
	order     []*MaterialTemplate
}

func NewPipelineBuilder(device hal.Device, descriptors *DescriptorAllocator, shaders ShaderLoader, shaderDir string, sceneLayout *DescriptorLayout) *PipelineBuilder {
	return &PipelineBuilder{
		device:      device,
		descriptors: descriptors,
		shaders:     shaders,
		shaderDir:   shaderDir,
		sceneLayout: sceneLayout,
		templates:   make(map[string]*MaterialTemplate),
	}
}

// SetTarget sets the render pass and extent new pipelines are built against.
func (p *PipelineBuilder) SetTarget(pass hal.RenderPass, extent hal.Extent2D) {
	p.renderPass = pass
	p.extent = extent
}

func (p *PipelineBuilder) loadStages(name string) ([]uint32, []uint32, error) {
	vert, err := p.shaders.LoadSPIRV(ShaderPath(p.shaderDir, name, hal.ShaderStageVertex))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "template %q vertex stage", name)
	}
	frag, err := p.shaders.LoadSPIRV(ShaderPath(p.shaderDir, name, hal.ShaderStageFragment))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "template %q fragment stage", name)
	}
	return vert, frag, nil
}

func (p *PipelineBuilder) createModules(vert, frag []uint32) (hal.ShaderModule, hal.ShaderModule, error) {
	vm, err := p.device.CreateShaderModule(vert)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to create vertex shader module")
	}
	fm, err := p.device.CreateShaderModule(frag)
	if err != nil {
		p.device.DestroyShaderModule(vm)
		return 0, 0, errors.Wrap(err, "failed to create fragment shader module")
	}
	return vm, fm, nil
}

// Build returns the cached template called config.Name or builds it. Set layouts are
// created before the pipeline layout and the pipeline.
func (p *PipelineBuilder) Build(config TemplateConfig) (*MaterialTemplate, error) {
	if t, ok := p.templates[config.Name]; ok {
		return t, nil
	}
	if p.renderPass == 0 {
		return nil, errors.Newf("no render pass to build template %q against", config.Name)
	}

	vert, frag, err := p.loadStages(config.Name)
	if err != nil {
		err = core.FatalInit(err)
		core.LogError(err.Error())
		return nil, err
	}

	t := &MaterialTemplate{
		Name:            config.Name,
		Ordering:        append([]DescriptorKind(nil), config.Ordering...),
		DynamicViewport: config.DynamicViewport,
		Layouts:         []hal.DescriptorSetLayout{p.sceneLayout.Handle},
		Index:           len(p.order),
	}
	if len(t.Ordering) > 0 {
		bindings := make([]hal.DescriptorBinding, len(t.Ordering))
		for i, k := range t.Ordering {
			bindings[i] = k.binding(i)
		}
		if t.MaterialLayout, err = p.descriptors.CreateLayout(bindings); err != nil {
			return nil, core.FatalInit(err)
		}
		t.Layouts = append(t.Layouts, t.MaterialLayout.Handle)
	}

	if t.PipelineLayout, err = p.device.CreatePipelineLayout(t.Layouts); err != nil {
		err = core.FatalInit(errors.Wrapf(err, "failed to create pipeline layout for %q", t.Name))
		core.LogError(err.Error())
		return nil, err
	}
	if t.vertex, t.fragment, err = p.createModules(vert, frag); err != nil {
		p.device.DestroyPipelineLayout(t.PipelineLayout)
		return nil, core.FatalInit(err)
	}
	if t.Pipeline, err = p.createPipeline(t); err != nil {
		p.device.DestroyShaderModule(t.vertex)
		p.device.DestroyShaderModule(t.fragment)
		p.device.DestroyPipelineLayout(t.PipelineLayout)
		return nil, core.FatalInit(err)
	}

	p.templates[t.Name] = t
	p.order = append(p.order, t)
	core.LogInfo("Material template '%s' built.", t.Name)
	return t, nil
}

func (p *PipelineBuilder) createPipeline(t *MaterialTemplate) (hal.Pipeline, error) {
	pipeline, err := p.device.CreateGraphicsPipeline(hal.GraphicsPipelineDescriptor{
		Vertex:          t.vertex,
		Fragment:        t.fragment,
		Layout:          t.PipelineLayout,
		RenderPass:      p.renderPass,
		VertexLayout:    VertexLayout(),
		Topology:        hal.TopologyTriangleList,
		Extent:          p.extent,
		DynamicViewport: t.DynamicViewport,
		CullMode:        hal.CullModeBack,
		FrontFace:       hal.FrontFaceCounterClockwise,
		BlendEnable:     false,
		Samples:         1,
	})
	if err != nil {
		err = errors.Wrapf(err, "failed to create graphics pipeline for %q", t.Name)
		core.LogError(err.Error())
		return 0, err
	}
	return pipeline, nil
}

func (p *PipelineBuilder) Get(name string) (*MaterialTemplate, bool) {
	t, ok := p.templates[name]
	return t, ok
}

// Templates returns every template in registration order.
func (p *PipelineBuilder) Templates() []*MaterialTemplate {
	return append([]*MaterialTemplate(nil), p.order...)
}

// Rebuild recreates the pipeline of every static viewport template for a new extent.
// The device must be idle.
func (p *PipelineBuilder) Rebuild(extent hal.Extent2D) error {
	p.extent = extent
	for _, t := range p.order {
		if t.DynamicViewport {
			continue
		}
		p.device.DestroyPipeline(t.Pipeline)
		t.Pipeline = 0
		pipeline, err := p.createPipeline(t)
		if err != nil {
			return core.FatalRuntime(err)
		}
		t.Pipeline = pipeline
	}
	return nil
}

// Reload rereads the shader binaries of name and swaps in a new pipeline. The old
// pipeline stays in place when anything fails. The device must be idle.
func (p *PipelineBuilder) Reload(name string) error {
	t, ok := p.templates[name]
	if !ok {
		return errors.Wrapf(core.ErrUnknownTemplate, "reloading %q", name)
	}
	vert, frag, err := p.loadStages(name)
	if err != nil {
		return err
	}
	vm, fm, err := p.createModules(vert, frag)
	if err != nil {
		return err
	}

	next := *t
	next.vertex, next.fragment = vm, fm
	pipeline, err := p.createPipeline(&next)
	if err != nil {
		p.device.DestroyShaderModule(vm)
		p.device.DestroyShaderModule(fm)
		return err
	}

	p.device.DestroyPipeline(t.Pipeline)
	p.device.DestroyShaderModule(t.vertex)
	p.device.DestroyShaderModule(t.fragment)
	t.Pipeline, t.vertex, t.fragment = pipeline, vm, fm
	core.LogInfo("Material template '%s' reloaded.", name)
	return nil
}

// Destroy releases pipelines, pipeline layouts and shader modules. Set layouts belong
// to the DescriptorAllocator.
func (p *PipelineBuilder) Destroy() {
	core.LogInfo("Destroying %d material templates...", len(p.order))
	for i := len(p.order) - 1; i >= 0; i-- {
		t := p.order[i]
		if t.Pipeline != 0 {
			p.device.DestroyPipeline(t.Pipeline)
		}
		p.device.DestroyPipelineLayout(t.PipelineLayout)
		p.device.DestroyShaderModule(t.vertex)
		p.device.DestroyShaderModule(t.fragment)
	}
	p.templates = make(map[string]*MaterialTemplate)
	p.order = nil
}
