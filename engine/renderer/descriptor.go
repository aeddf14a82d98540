package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

// PoolCapacity is the fixed size of the global descriptor pool.
type PoolCapacity struct {
	UniformBuffers        uint32
	CombinedImageSamplers uint32
	MaxSets               uint32
}

// DescriptorUsage counts what has been allocated out of the pool so far.
type DescriptorUsage struct {
	UniformBuffers        uint32
	CombinedImageSamplers uint32
	Sets                  uint32
}

func (u DescriptorUsage) add(bindings []hal.DescriptorBinding) DescriptorUsage {
	for _, b := range bindings {
		switch b.Type {
		case hal.DescriptorTypeUniformBuffer:
			u.UniformBuffers += b.Count
		case hal.DescriptorTypeCombinedImageSampler:
			u.CombinedImageSamplers += b.Count
		}
	}
	u.Sets++
	return u
}

func (u DescriptorUsage) fits(c PoolCapacity) bool {
	return u.UniformBuffers <= c.UniformBuffers &&
		u.CombinedImageSamplers <= c.CombinedImageSamplers &&
		u.Sets <= c.MaxSets
}

type DescriptorLayout struct {
	Handle   hal.DescriptorSetLayout
	Bindings []hal.DescriptorBinding
}

func (l *DescriptorLayout) Binding(binding uint32) (hal.DescriptorBinding, bool) {
	for _, b := range l.Bindings {
		if b.Binding == binding {
			return b, true
		}
	}
	return hal.DescriptorBinding{}, false
}

type DescriptorSet struct {
	Handle  hal.DescriptorSet
	Layout  *DescriptorLayout
	written map[uint32]bool
}

func (s *DescriptorSet) Written(binding uint32) bool {
	return s.written[binding]
}

// DescriptorResource is what a binding can point at.
type DescriptorResource interface {
	descriptorType() hal.DescriptorType
	write(binding uint32) hal.DescriptorWrite
}

// BufferResource is a range of a uniform buffer. A zero Range means the whole buffer.
type BufferResource struct {
	Buffer *Buffer
	Offset uint64
	Range  uint64
}

func (r BufferResource) descriptorType() hal.DescriptorType {
	return hal.DescriptorTypeUniformBuffer
}

func (r BufferResource) write(binding uint32) hal.DescriptorWrite {
	size := r.Range
	if size == 0 {
		size = r.Buffer.Size - r.Offset
	}
	return hal.DescriptorWrite{
		Binding: binding,
		Type:    hal.DescriptorTypeUniformBuffer,
		Buffer:  r.Buffer.Handle,
		Offset:  r.Offset,
		Range:   size,
	}
}

type ImageResource struct {
	Image   *Image
	Sampler hal.Sampler
}

func (r ImageResource) descriptorType() hal.DescriptorType {
	return hal.DescriptorTypeCombinedImageSampler
}

func (r ImageResource) write(binding uint32) hal.DescriptorWrite {
	return hal.DescriptorWrite{
		Binding: binding,
		Type:    hal.DescriptorTypeCombinedImageSampler,
		View:    r.Image.View,
		Sampler: r.Sampler,
	}
}

// DescriptorAllocator owns the one global descriptor pool and every set layout.
// Sets are never freed individually; they go away with the pool.
type DescriptorAllocator struct {
	device   hal.Device
	pool     hal.DescriptorPool
	capacity PoolCapacity
	usage    DescriptorUsage
	layouts  []*DescriptorLayout
}

func NewDescriptorAllocator(device hal.Device, capacity PoolCapacity) (*DescriptorAllocator, error) {
	pool, err := device.CreateDescriptorPool(capacity.MaxSets, []hal.DescriptorPoolSize{
		{Type: hal.DescriptorTypeUniformBuffer, Count: capacity.UniformBuffers},
		{Type: hal.DescriptorTypeCombinedImageSampler, Count: capacity.CombinedImageSamplers},
	})
	if err != nil {
		err = errors.Wrap(err, "failed to create descriptor pool")
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("Descriptor pool created: %d uniform buffers, %d samplers, %d sets.",
		capacity.UniformBuffers, capacity.CombinedImageSamplers, capacity.MaxSets)
	return &DescriptorAllocator{
		device:   device,
		pool:     pool,
		capacity: capacity,
	}, nil
}

// CreateLayout creates a set layout from bindings in the given order.
func (a *DescriptorAllocator) CreateLayout(bindings []hal.DescriptorBinding) (*DescriptorLayout, error) {
	seen := make(map[uint32]bool, len(bindings))
	for _, b := range bindings {
		if seen[b.Binding] {
			return nil, errors.Newf("binding %d declared twice", b.Binding)
		}
		if b.Count == 0 {
			return nil, errors.Newf("binding %d has no descriptors", b.Binding)
		}
		seen[b.Binding] = true
	}
	handle, err := a.device.CreateDescriptorSetLayout(bindings)
	if err != nil {
		err = errors.Wrap(err, "failed to create descriptor set layout")
		core.LogError(err.Error())
		return nil, err
	}
	l := &DescriptorLayout{
		Handle:   handle,
		Bindings: append([]hal.DescriptorBinding(nil), bindings...),
	}
	a.layouts = append(a.layouts, l)
	return l, nil
}

// Allocate takes one set for layout out of the pool. When the set would push any
// descriptor count or the set count past capacity it fails with ErrPoolExhausted
// without calling the driver.
func (a *DescriptorAllocator) Allocate(layout *DescriptorLayout) (*DescriptorSet, error) {
	next := a.usage.add(layout.Bindings)
	if !next.fits(a.capacity) {
		err := core.FatalRuntime(errors.Wrapf(core.ErrPoolExhausted,
			"need %d/%d uniform buffers, %d/%d samplers, %d/%d sets",
			next.UniformBuffers, a.capacity.UniformBuffers,
			next.CombinedImageSamplers, a.capacity.CombinedImageSamplers,
			next.Sets, a.capacity.MaxSets))
		core.LogError(err.Error())
		return nil, err
	}
	handle, err := a.device.AllocateDescriptorSet(a.pool, layout.Handle)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate descriptor set")
	}
	a.usage = next
	return &DescriptorSet{
		Handle:  handle,
		Layout:  layout,
		written: make(map[uint32]bool),
	}, nil
}

// WriteSet points binding of set at res. A binding is written once; afterwards only
// the contents of the resource change.
func (a *DescriptorAllocator) WriteSet(set *DescriptorSet, binding uint32, res DescriptorResource) error {
	b, ok := set.Layout.Binding(binding)
	if !ok {
		return errors.Newf("set layout has no binding %d", binding)
	}
	if b.Type != res.descriptorType() {
		return errors.Newf("binding %d expects %s, got %s", binding, b.Type, res.descriptorType())
	}
	if set.written[binding] {
		return errors.Newf("binding %d of descriptor set %d already written", binding, set.Handle)
	}
	a.device.UpdateDescriptorSet(set.Handle, []hal.DescriptorWrite{res.write(binding)})
	set.written[binding] = true
	return nil
}

func (a *DescriptorAllocator) Usage() DescriptorUsage {
	return a.usage
}

func (a *DescriptorAllocator) Capacity() PoolCapacity {
	return a.capacity
}

// Destroy frees the pool, which releases every set, and then the layouts.
func (a *DescriptorAllocator) Destroy() {
	core.LogInfo("Destroying descriptor pool and %d set layouts...", len(a.layouts))
	if a.pool != 0 {
		a.device.DestroyDescriptorPool(a.pool)
		a.pool = 0
	}
	for i := len(a.layouts) - 1; i >= 0; i-- {
		a.device.DestroyDescriptorSetLayout(a.layouts[i].Handle)
	}
	a.layouts = nil
	a.usage = DescriptorUsage{}
}
