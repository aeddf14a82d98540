package systems

import (
	"github.com/spaghettifunk/vista/engine/renderer"
)

// AssetSource loads the files the scene is built from.
type AssetSource interface {
	ModelLoader
	renderer.TextureDecoder
}

type SystemManager struct {
	jobSystem     *JobSystem
	sceneRegistry *SceneRegistry
}

// NewSystemManager starts the job system and creates a scene registry on top of r.
// The scene is handed to r, which destroys it during its own shutdown.
func NewSystemManager(r *renderer.Renderer, assets AssetSource, workers int) (*SystemManager, error) {
	js, err := NewJobSystem(workers, workers*2)
	if err != nil {
		return nil, err
	}

	scene := NewSceneRegistry(SceneConfig{
		Pipelines:   r.Pipelines(),
		Resources:   r.Resources(),
		Descriptors: r.Descriptors(),
		SceneSet:    r.SceneSet(),
		Sampler:     r.Sampler(),
		Models:      assets,
		Textures:    assets,
		Jobs:        js,
		Invalidate:  r.Invalidate,
	})
	if err := r.SetScene(scene); err != nil {
		_ = js.Shutdown()
		return nil, err
	}

	return &SystemManager{
		jobSystem:     js,
		sceneRegistry: scene,
	}, nil
}

func (sm *SystemManager) Scene() *SceneRegistry {
	return sm.sceneRegistry
}

func (sm *SystemManager) Jobs() *JobSystem {
	return sm.jobSystem
}

// Shutdown stops the job system. The scene goes with the renderer.
func (sm *SystemManager) Shutdown() error {
	return sm.jobSystem.Shutdown()
}
