package renderer

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/math"
	"github.com/spaghettifunk/vista/engine/renderer/hal"
)

// PreferredSurfaceFormat is the standard 32-bit sRGB format.
var PreferredSurfaceFormat = hal.SurfaceFormat{
	Format:     hal.FormatB8G8R8A8Srgb,
	ColorSpace: hal.ColorSpaceSrgbNonlinear,
}

// ChooseSurfaceFormat returns the preferred format when offered. A lone UNDEFINED
// entry means the surface has no preference.
func ChooseSurfaceFormat(available []hal.SurfaceFormat) hal.SurfaceFormat {
	if len(available) == 0 {
		return PreferredSurfaceFormat
	}
	if len(available) == 1 && available[0].Format == hal.FormatUndefined {
		return PreferredSurfaceFormat
	}
	for _, f := range available {
		if f == PreferredSurfaceFormat {
			return f
		}
	}
	return available[0]
}

// ChoosePresentMode returns preferred when the surface supports it, FIFO otherwise.
func ChoosePresentMode(available []hal.PresentMode, preferred hal.PresentMode) hal.PresentMode {
	for _, m := range available {
		if m == preferred {
			return m
		}
	}
	return hal.PresentModeFifo
}

func ChooseExtent(caps hal.SurfaceCapabilities, width, height uint32) hal.Extent2D {
	if caps.CurrentExtent.Width != hal.MaxExtent {
		return caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	return hal.Extent2D{
		Width:  math.Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func ChooseImageCount(caps hal.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// SwapchainManager owns the presentable images and their views.
type SwapchainManager struct {
	device    hal.Device
	preferred hal.PresentMode

	handle      hal.Swapchain
	images      []hal.Image
	views       []hal.ImageView
	format      hal.SurfaceFormat
	presentMode hal.PresentMode
	extent      hal.Extent2D
}

func NewSwapchainManager(device hal.Device, preferred hal.PresentMode) *SwapchainManager {
	return &SwapchainManager{
		device:    device,
		preferred: preferred,
	}
}

func (s *SwapchainManager) Create(width, height uint32) error {
	if s.handle != 0 {
		return errors.New("swapchain already created, use Recreate")
	}
	return s.create(width, height)
}

// Recreate waits for the device, destroys the views and replaces the swapchain wholesale.
func (s *SwapchainManager) Recreate(width, height uint32) error {
	if err := s.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for idle before swapchain recreation")
	}
	s.destroyViews()
	return s.create(width, height)
}

func (s *SwapchainManager) create(width, height uint32) error {
	support, err := s.device.SurfaceSupport()
	if err != nil {
		return errors.Wrap(err, "querying surface support")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return errors.New("surface reports no formats or present modes")
	}

	s.format = ChooseSurfaceFormat(support.Formats)
	s.presentMode = ChoosePresentMode(support.PresentModes, s.preferred)
	s.extent = ChooseExtent(support.Capabilities, width, height)

	old := s.handle
	handle, images, err := s.device.CreateSwapchain(hal.SwapchainDescriptor{
		MinImageCount: ChooseImageCount(support.Capabilities),
		Format:        s.format,
		PresentMode:   s.presentMode,
		Extent:        s.extent,
		PreTransform:  support.Capabilities.CurrentTransform,
		Old:           old,
	})
	if err != nil {
		err = errors.Wrap(err, "failed to create swapchain")
		core.LogError(err.Error())
		return err
	}
	if old != 0 {
		s.device.DestroySwapchain(old)
	}
	s.handle = handle
	s.images = images

	s.views = make([]hal.ImageView, 0, len(images))
	for _, img := range images {
		view, err := s.device.CreateImageView(img, s.format.Format)
		if err != nil {
			s.destroyViews()
			err = errors.Wrap(err, "failed to create image view")
			core.LogError(err.Error())
			return err
		}
		s.views = append(s.views, view)
	}

	core.LogInfo("Swapchain created: %d images, %dx%d, %s, %s.",
		len(images), s.extent.Width, s.extent.Height, s.format.Format, s.presentMode)
	return nil
}

func (s *SwapchainManager) AcquireNextImage(timeout time.Duration, signal hal.Semaphore) (uint32, error) {
	return s.device.AcquireNextImage(s.handle, timeout, signal)
}

func (s *SwapchainManager) Present(queue hal.QueueKind, index uint32, wait hal.Semaphore) error {
	return s.device.Present(queue, s.handle, index, wait)
}

func (s *SwapchainManager) destroyViews() {
	// Only destroy the views, not the images, since those are owned by the swapchain.
	for _, v := range s.views {
		s.device.DestroyImageView(v)
	}
	s.views = nil
}

// Destroy releases the views and the swapchain. The caller must have waited for idle.
func (s *SwapchainManager) Destroy() {
	s.destroyViews()
	if s.handle != 0 {
		s.device.DestroySwapchain(s.handle)
		s.handle = 0
	}
	s.images = nil
}

func (s *SwapchainManager) Handle() hal.Swapchain        { return s.handle }
func (s *SwapchainManager) Images() []hal.Image          { return s.images }
func (s *SwapchainManager) Views() []hal.ImageView       { return s.views }
func (s *SwapchainManager) Format() hal.SurfaceFormat    { return s.format }
func (s *SwapchainManager) PresentMode() hal.PresentMode { return s.presentMode }
func (s *SwapchainManager) Extent() hal.Extent2D         { return s.extent }
func (s *SwapchainManager) ImageCount() int              { return len(s.images) }
