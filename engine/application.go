package engine

import (
	"github.com/spaghettifunk/vista/engine/config"
	"github.com/spaghettifunk/vista/engine/core"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Window starting width, if applicable.
	StartWidth uint32
	// Window starting height, if applicable.
	StartHeight uint32
	// The application name used in windowing, if applicable.
	Name     string
	LogLevel core.LogLevel
	Settings *config.Settings
}

func NewApplicationConfig(settings *config.Settings) *ApplicationConfig {
	return &ApplicationConfig{
		StartPosX:   settings.Window.X,
		StartPosY:   settings.Window.Y,
		StartWidth:  settings.Window.Width,
		StartHeight: settings.Window.Height,
		Name:        settings.Window.Title,
		LogLevel:    core.ParseLogLevel(settings.LogLevel),
		Settings:    settings,
	}
}
