// Package engine runs the window, the renderer and the game loop.
package engine

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine/assets"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/platform"
	"github.com/spaghettifunk/vista/engine/renderer"
	"github.com/spaghettifunk/vista/engine/renderer/vulkan"
	"github.com/spaghettifunk/vista/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	isSuspended   bool
	bus           *core.EventBus
	platform      *platform.Platform
	assetManager  *assets.AssetManager
	renderer      *renderer.Renderer
	systemManager *systems.SystemManager
	width         uint32
	height        uint32
	clock         *core.Clock
	metrics       *core.Metrics
	lastTime      float64

	// Templates whose shader binaries changed on disk, reloaded between frames.
	reloadMutex    sync.Mutex
	pendingReloads map[string]struct{}
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil || g.ApplicationConfig.Settings == nil {
		return nil, errors.New("game has no application settings")
	}
	bus := core.NewEventBus()
	return &Engine{
		currentStage:   EngineStageUninitialized,
		gameInstance:   g,
		bus:            bus,
		platform:       platform.New(bus),
		assetManager:   assets.NewAssetManager(bus),
		clock:          core.NewClock(),
		metrics:        core.NewMetrics(),
		width:          g.ApplicationConfig.StartWidth,
		height:         g.ApplicationConfig.StartHeight,
		pendingReloads: make(map[string]struct{}),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	appConfig := e.gameInstance.ApplicationConfig
	settings := appConfig.Settings
	core.SetLogLevel(appConfig.LogLevel)

	// register some events
	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.bus.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.bus.Register(core.EVENT_CODE_ASSET_CHANGED, e, e.onAssetChanged)

	if err := e.platform.Startup(appConfig.Name,
		appConfig.StartPosX,
		appConfig.StartPosY,
		appConfig.StartWidth,
		appConfig.StartHeight); err != nil {
		return err
	}

	if err := e.assetManager.Initialize(settings.Assets.Root, settings.Assets.Watch); err != nil {
		err = core.FatalInit(errors.Wrapf(err, "cataloguing assets under %s", settings.Assets.Root))
		core.LogError(err.Error())
		return err
	}

	instance, err := vulkan.NewInstance(vulkan.InstanceConfig{
		ApplicationName:    settings.Application.Name,
		ApplicationVersion: settings.Application.Version,
		EngineName:         settings.Application.EngineName,
		EngineVersion:      settings.Application.EngineVersion,
		EnableValidation:   settings.Renderer.EnableValidation,
	}, e.platform)
	if err != nil {
		return err
	}

	e.width, e.height = e.platform.FramebufferSize()
	settings.Window.Width, settings.Window.Height = e.width, e.height
	if e.renderer, err = renderer.New(instance, settings, e.assetManager, e.assetManager); err != nil {
		return err
	}

	if e.systemManager, err = systems.NewSystemManager(e.renderer, e.assetManager, settings.Workers); err != nil {
		return err
	}
	e.gameInstance.SystemManager = e.systemManager
	e.gameInstance.Renderer = e.renderer

	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}
	e.renderer.Invalidate()

	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			break
		}

		if e.isSuspended {
			e.platform.WaitMessages(100 * time.Millisecond)
			continue
		}

		e.clock.Update()
		var currentTime float64 = e.clock.Elapsed()
		var delta float64 = (currentTime - e.lastTime)
		var frameStartTime float64 = platform.GetAbsoluteTime()

		e.applyReloads()

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("Game update failed, shutting down: %s", err)
			return err
		}

		if err := e.gameInstance.FnRender(delta); err != nil {
			core.LogError("Game render failed, shutting down: %s", err)
			return err
		}

		if err := e.renderer.DrawFrame(); err != nil {
			core.LogError("Frame failed, shutting down: %s", err)
			return err
		}

		var frameElapsedTime float64 = platform.GetAbsoluteTime() - frameStartTime
		if e.metrics.Update(frameElapsedTime) {
			fps, frameTime := e.metrics.Frame()
			core.LogDebug("FPS: %.0f, frame time: %.3fms", fps, frameTime)
		}

		e.lastTime = currentTime
	}

	return nil
}

// Quit stops the loop after the current frame. Safe to call from any goroutine.
func (e *Engine) Quit() {
	e.isRunning.Store(false)
}

// Shutdown releases everything in reverse order of creation. The device is idle before
// any GPU object goes away.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.assetManager.Shutdown()

	var errs error
	if e.gameInstance.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	if e.systemManager != nil {
		errs = errors.CombineErrors(errs, e.systemManager.Shutdown())
	}
	if e.renderer != nil {
		errs = errors.CombineErrors(errs, e.renderer.Shutdown())
	}
	errs = errors.CombineErrors(errs, e.platform.Shutdown())
	e.bus.Shutdown()
	return errs
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) applyReloads() {
	e.reloadMutex.Lock()
	names := make([]string, 0, len(e.pendingReloads))
	for name := range e.pendingReloads {
		names = append(names, name)
	}
	e.pendingReloads = make(map[string]struct{})
	e.reloadMutex.Unlock()

	sort.Strings(names)
	for _, name := range names {
		if _, ok := e.systemManager.Scene().Template(name); !ok {
			continue
		}
		if err := e.renderer.ReloadTemplate(name); err != nil {
			core.LogError("reloading template '%s': %s", name, err)
		}
	}
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		{
			core.LogInfo("EVENT_CODE_APPLICATION_QUIT recieved, shutting down.")
			e.Quit()
			return true
		}
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogDebug("key %d pressed in window.", data.U32[0])
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.U32[0], data.U32[1]
	if width == e.width && height == e.height {
		return true
	}
	e.width = width
	e.height = height

	core.LogDebug("Window resize: %d, %d", width, height)

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.renderer != nil {
		e.renderer.Resized(width, height)
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	return true
}

// onAssetChanged runs on the watcher goroutine; the reload itself happens on the render thread.
func (e *Engine) onAssetChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	name, ok := assets.ShaderTemplate(data.Path)
	if !ok {
		return false
	}
	core.LogInfo("Shader '%s' changed on disk.", data.Path)
	e.reloadMutex.Lock()
	e.pendingReloads[name] = struct{}{}
	e.reloadMutex.Unlock()
	return true
}
