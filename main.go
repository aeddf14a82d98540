package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vista/engine"
	"github.com/spaghettifunk/vista/engine/config"
	"github.com/spaghettifunk/vista/engine/core"
	"github.com/spaghettifunk/vista/testbed"
)

func main() {
	configPath := flag.String("config", "vista.toml", "path of the settings file")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("loading settings: %s", err)
	}

	tb := testbed.NewTestGame(settings)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := e.Initialize(); err != nil {
		core.LogError("initialization failed: %s", err)
		if shutdownErr := e.Shutdown(); shutdownErr != nil {
			core.LogError(shutdownErr.Error())
		}
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the loop; shutdown happens on the main thread
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		os.Exit(1)
	}
}
