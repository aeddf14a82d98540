package renderer

import (
	"image"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

type Buffer struct {
	Handle hal.Buffer
	Usage  hal.BufferUsage
	Size   uint64
	Memory hal.MemoryProperty
}

// HostCoherent reports whether the buffer can be written without a staging copy.
func (b *Buffer) HostCoherent() bool {
	return b.Memory&(hal.MemoryHostVisible|hal.MemoryHostCoherent) == hal.MemoryHostVisible|hal.MemoryHostCoherent
}

type Image struct {
	Handle hal.Image
	View   hal.ImageView
	Width  uint32
	Height uint32
	Format hal.Format
	// Path is the file the pixels came from, empty for generated images.
	Path string
}

// TextureDecoder turns an image file into tightly packed RGBA pixels.
type TextureDecoder interface {
	Decode(path string) (*image.RGBA, error)
}

type ResourceStats struct {
	Buffers  int
	Images   int
	Samplers int
}

// ResourceFactory creates device resources and moves CPU data into them. Every resource
// it creates stays tracked until destroyed through it.
type ResourceFactory struct {
	device   hal.Device
	pool     hal.CommandPool
	textures TextureDecoder

	buffers  map[hal.Buffer]*Buffer
	images   map[hal.Image]*Image
	samplers map[hal.Sampler]hal.SamplerDescriptor
}

func NewResourceFactory(device hal.Device, pool hal.CommandPool, textures TextureDecoder) *ResourceFactory {
	return &ResourceFactory{
		device:   device,
		pool:     pool,
		textures: textures,
		buffers:  make(map[hal.Buffer]*Buffer),
		images:   make(map[hal.Image]*Image),
		samplers: make(map[hal.Sampler]hal.SamplerDescriptor),
	}
}

// CreateBuffer creates a buffer of size bytes. Uniform buffers are host visible and coherent;
// everything else is device local and receives its data through a staging copy.
func (f *ResourceFactory) CreateBuffer(usage hal.BufferUsage, size uint64) (*Buffer, error) {
	if size == 0 {
		return nil, errors.New("cannot create a zero sized buffer")
	}
	memory := hal.MemoryDeviceLocal
	if usage&hal.BufferUsageUniform != 0 {
		memory = hal.MemoryHostVisible | hal.MemoryHostCoherent
	} else {
		usage |= hal.BufferUsageTransferDst
	}
	return f.createBuffer(usage, size, memory)
}

func (f *ResourceFactory) createBuffer(usage hal.BufferUsage, size uint64, memory hal.MemoryProperty) (*Buffer, error) {
	handle, err := f.device.CreateBuffer(hal.BufferDescriptor{Size: size, Usage: usage, Memory: memory})
	if err != nil {
		err = errors.Wrapf(err, "failed to create buffer of %d bytes", size)
		core.LogError(err.Error())
		return nil, err
	}
	b := &Buffer{Handle: handle, Usage: usage, Size: size, Memory: memory}
	f.buffers[handle] = b
	return b, nil
}

// UpdateAndTransfer copies data to the start of buf. Device local buffers are filled through a
// staging buffer and the call returns once the copy has finished on the GPU.
func (f *ResourceFactory) UpdateAndTransfer(buf *Buffer, data []byte) error {
	if uint64(len(data)) > buf.Size {
		return errors.Newf("%d bytes do not fit in buffer of %d bytes", len(data), buf.Size)
	}
	if len(data) == 0 {
		return nil
	}
	if buf.HostCoherent() {
		return f.device.WriteBuffer(buf.Handle, 0, data)
	}

	staging, err := f.stage(data)
	if err != nil {
		return err
	}
	defer f.DestroyBuffer(staging)

	return f.oneTimeSubmit(func(rec hal.CommandRecorder) {
		rec.CopyBuffer(staging.Handle, buf.Handle, uint64(len(data)))
	})
}

func (f *ResourceFactory) stage(data []byte) (*Buffer, error) {
	staging, err := f.createBuffer(hal.BufferUsageTransferSrc, uint64(len(data)), hal.MemoryHostVisible|hal.MemoryHostCoherent)
	if err != nil {
		return nil, err
	}
	if err := f.device.WriteBuffer(staging.Handle, 0, data); err != nil {
		f.DestroyBuffer(staging)
		return nil, errors.Wrap(err, "filling staging buffer")
	}
	return staging, nil
}

// oneTimeSubmit records a throwaway command buffer, submits it and waits for it to complete.
func (f *ResourceFactory) oneTimeSubmit(record func(rec hal.CommandRecorder)) error {
	cbs, err := f.device.AllocateCommandBuffers(f.pool, 1)
	if err != nil {
		return errors.Wrap(err, "allocating single use command buffer")
	}
	defer f.device.FreeCommandBuffers(f.pool, cbs)

	rec, err := f.device.Begin(cbs[0], hal.CommandBufferUsageOneTimeSubmit)
	if err != nil {
		return errors.Wrap(err, "beginning single use command buffer")
	}
	record(rec)
	if err := rec.End(); err != nil {
		return errors.Wrap(err, "ending single use command buffer")
	}
	if err := f.device.SubmitAndWait(hal.QueueGraphics, cbs[0]); err != nil {
		return errors.Wrap(err, "submitting single use command buffer")
	}
	return nil
}

// CreateImage loads the file at path and uploads it as a sampled image.
func (f *ResourceFactory) CreateImage(path string, format hal.Format) (*Image, error) {
	if f.textures == nil {
		return nil, core.FatalInit(errors.Mark(errors.Newf("no texture decoder to load %s", path), core.ErrAssetLoad))
	}
	pixels, err := f.textures.Decode(path)
	if err != nil {
		err = core.FatalInit(errors.Mark(errors.Wrapf(err, "loading texture %s", path), core.ErrAssetLoad))
		core.LogError(err.Error())
		return nil, err
	}
	b := pixels.Bounds()
	img, err := f.CreateImageFromPixels(uint32(b.Dx()), uint32(b.Dy()), pixels.Pix, format)
	if err != nil {
		return nil, core.FatalInit(err)
	}
	img.Path = path
	return img, nil
}

// CreateImageFromPixels uploads width*height RGBA pixels into a new sampled image and creates its view.
func (f *ResourceFactory) CreateImageFromPixels(width, height uint32, pixels []byte, format hal.Format) (*Image, error) {
	if width == 0 || height == 0 {
		return nil, errors.Newf("invalid image size %dx%d", width, height)
	}
	size := uint64(width) * uint64(height) * 4
	if uint64(len(pixels)) != size {
		return nil, errors.Newf("expected %d bytes of pixels, got %d", size, len(pixels))
	}

	staging, err := f.stage(pixels)
	if err != nil {
		return nil, err
	}
	defer f.DestroyBuffer(staging)

	handle, err := f.device.CreateImage(hal.ImageDescriptor{
		Width:  width,
		Height: height,
		Format: format,
		Usage:  hal.ImageUsageTransferDst | hal.ImageUsageSampled,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create image")
	}

	err = f.oneTimeSubmit(func(rec hal.CommandRecorder) {
		rec.TransitionImageLayout(handle, hal.ImageLayoutUndefined, hal.ImageLayoutTransferDst)
		rec.CopyBufferToImage(staging.Handle, handle, width, height)
		rec.TransitionImageLayout(handle, hal.ImageLayoutTransferDst, hal.ImageLayoutShaderReadOnly)
	})
	if err != nil {
		f.device.DestroyImage(handle)
		return nil, err
	}

	view, err := f.device.CreateImageView(handle, format)
	if err != nil {
		f.device.DestroyImage(handle)
		return nil, errors.Wrap(err, "failed to create texture image view")
	}

	img := &Image{Handle: handle, View: view, Width: width, Height: height, Format: format}
	f.images[handle] = img
	return img, nil
}

// SceneSamplerDescriptor is the sampler every textured material uses.
func SceneSamplerDescriptor(maxAnisotropy float32) hal.SamplerDescriptor {
	return hal.SamplerDescriptor{
		MagFilter:        hal.FilterLinear,
		MinFilter:        hal.FilterLinear,
		AddressMode:      hal.AddressModeRepeat,
		AnisotropyEnable: maxAnisotropy > 1,
		MaxAnisotropy:    maxAnisotropy,
		BorderColor:      hal.BorderColorIntOpaqueWhite,
		MipmapLinear:     true,
		MinLod:           0,
		MaxLod:           0,
	}
}

func (f *ResourceFactory) CreateSampler(desc hal.SamplerDescriptor) (hal.Sampler, error) {
	s, err := f.device.CreateSampler(desc)
	if err != nil {
		err = errors.Wrap(err, "failed to create sampler")
		core.LogError(err.Error())
		return 0, err
	}
	f.samplers[s] = desc
	return s, nil
}

func (f *ResourceFactory) DestroyBuffer(buf *Buffer) {
	if buf == nil {
		return
	}
	if _, ok := f.buffers[buf.Handle]; !ok {
		return
	}
	f.device.DestroyBuffer(buf.Handle)
	delete(f.buffers, buf.Handle)
}

func (f *ResourceFactory) DestroyImage(img *Image) {
	if img == nil {
		return
	}
	if _, ok := f.images[img.Handle]; !ok {
		return
	}
	f.device.DestroyImageView(img.View)
	f.device.DestroyImage(img.Handle)
	delete(f.images, img.Handle)
}

func (f *ResourceFactory) DestroySampler(s hal.Sampler) {
	if _, ok := f.samplers[s]; !ok {
		return
	}
	f.device.DestroySampler(s)
	delete(f.samplers, s)
}

func (f *ResourceFactory) Stats() ResourceStats {
	return ResourceStats{Buffers: len(f.buffers), Images: len(f.images), Samplers: len(f.samplers)}
}

// Destroy releases every resource still tracked. The device must be idle.
func (f *ResourceFactory) Destroy() {
	core.LogInfo("Destroying %d buffers, %d images and %d samplers...", len(f.buffers), len(f.images), len(f.samplers))
	for _, img := range f.images {
		f.device.DestroyImageView(img.View)
		f.device.DestroyImage(img.Handle)
	}
	for h := range f.buffers {
		f.device.DestroyBuffer(h)
	}
	for s := range f.samplers {
		f.device.DestroySampler(s)
	}
	f.images = make(map[hal.Image]*Image)
	f.buffers = make(map[hal.Buffer]*Buffer)
	f.samplers = make(map[hal.Sampler]hal.SamplerDescriptor)
}
