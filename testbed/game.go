/*
This is an example of application that will use the
engine package to test things out
*/
package testbed

import (
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vista/engine"
	"github.com/spaghettifunk/vista/engine/assets/loaders"
	"github.com/spaghettifunk/vista/engine/config"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/engine/math"
	"github.com/spaghettifunk/vista/engine/renderer"
	"github.com/spaghettifunk/vista/engine/systems"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32
	models []systems.ModelHandle
}

// Templates is every material template the testbed can draw with.
func Templates(settings *config.Settings) []renderer.TemplateConfig {
	return []renderer.TemplateConfig{
		{
			Name:     "triangle",
			Ordering: []renderer.DescriptorKind{renderer.DescriptorConstants},
		},
		{
			Name:            "textured",
			Ordering:        []renderer.DescriptorKind{renderer.DescriptorConstants, renderer.DescriptorDiffuseMap},
			DynamicViewport: settings.Renderer.DynamicViewport,
		},
	}
}

func NewTestGame(settings *config.Settings) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(settings),
			State:             &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil {
		return errors.New("the engine is not yet initialized with all the system managers")
	}

	state := g.State.(*gameState)
	settings := g.ApplicationConfig.Settings
	scene := g.SystemManager.Scene()

	for _, t := range Templates(settings) {
		if _, err := scene.AddMaterialTemplate(t); err != nil {
			return err
		}
	}

	if settings.Scene.Model != "" {
		handles, err := scene.LoadModels([]systems.ModelRequest{{
			Path:     filepath.Join(settings.Assets.Models, settings.Scene.Model),
			Name:     settings.Scene.Model,
			Template: settings.Scene.Template,
		}})
		if err != nil {
			return err
		}
		state.models = append(state.models, handles...)
		return nil
	}

	// No model configured: draw the demo quad.
	material := loaders.DefaultMaterial()
	if settings.Scene.Texture != "" {
		material.Name = settings.Scene.Texture
		material.DiffuseMap = filepath.Join(settings.Assets.Textures, settings.Scene.Texture)
	}
	vertices, indices := math.Quad()
	h, err := scene.AddMesh("quad", vertices, indices, material, settings.Scene.Template)
	if err != nil {
		return err
	}
	state.models = append(state.models, h)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	return nil
}

func (g *TestGame) Render(deltaTime float64) error {
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("testbed shut down with %d models.", len(g.State.(*gameState).models))
	return nil
}
