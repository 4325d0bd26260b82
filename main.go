/*
Testbed application that drives the engine with a grid of spinning meshes.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima/engine"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/testbed"
)

func main() {
	configPath := flag.String("config", "anima.toml", "path to the engine configuration")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		core.LogFatal("failed to load configuration: %s", err)
	}

	e := engine.New(testbed.NewTestGame(cfg.Assets.Root), cfg)
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("failed to initialize the engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown finished with errors: %s", err)
	}
	if runErr != nil {
		core.LogFatal("engine stopped: %s", runErr)
	}
}
