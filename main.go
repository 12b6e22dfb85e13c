package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dockwatch/assembly"
	"dockwatch/config"
	"dockwatch/docker"
	"dockwatch/fs"
	"dockwatch/hook"
	"dockwatch/shell"
	"dockwatch/ui"
	"dockwatch/watch"
)

// buildGateway combines image builds with changed-file packaging.
type buildGateway struct {
	*docker.Client
	*assembly.Archiver
}

func main() {
	configPath := flag.String("config", "dockwatch.star", "path to the dockwatch config file")
	showUI := flag.Bool("ui", false, "show the live watch status view instead of plain log output")
	keepRunning := flag.Bool("keep-running", false, "leave containers running after the watch session ends")
	flag.Parse()

	cfg, err := config.ParseStarlarkConfig(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *keepRunning {
		cfg.Defaults.KeepRunning = true
	}

	executor := shell.RealCommandExecutor{}
	client := docker.NewClient(executor)
	filesystem := fs.RealFileSystem{}
	status := watch.NewStatusManager()

	session := &watch.Session{
		Config:    cfg,
		Changes:   assembly.NewSource(filesystem),
		Build:     buildGateway{client, assembly.NewArchiver(filesystem, os.TempDir())},
		Runtime:   client,
		Hooks:     hook.NewRunner(executor, cfg.Hooks),
		Status:    status,
		LogOutput: !*showUI,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *showUI {
		go func() {
			if err := ui.Run(status, ctx.Done(), cancel); err != nil {
				log.Printf("Error running status view: %v", err)
			}
			cancel()
		}()
	}

	if err := session.Run(ctx); err != nil {
		log.Fatalf("Error running watch session: %v", err)
	}
}
