// Package main is the entry point for the drumgrid API server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/james-see/drumgrid/pkg/api"
	"github.com/james-see/drumgrid/pkg/config"
	"github.com/james-see/drumgrid/pkg/emitter"
	"github.com/james-see/drumgrid/pkg/logging"
	"github.com/james-see/drumgrid/pkg/pattern"
	"github.com/james-see/drumgrid/pkg/serializer"
)

func main() {
	defaultCfg, _ := config.DefaultPath()
	cfgPath := flag.String("config", defaultCfg, "Config file path")
	port := flag.Int("port", 0, "Server port (default from config, 8080)")
	file := flag.String("file", "", "Pattern file to serve")
	flag.Parse()

	if err := run(*cfgPath, *port, *file); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, port int, file string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, "drumgrid-server")
	if err != nil {
		return err
	}
	em, err := emitter.New(append(cfg.EmitterOptions(), emitter.WithLogger(logger))...)
	if err != nil {
		return err
	}

	store := pattern.NewStore()
	if file != "" {
		p, err := serializer.LoadFile(file)
		if err != nil {
			return err
		}
		if err := store.Replace(p); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting drumgrid API server on port %d...\n", port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", port)
	return api.NewServer(store, em, logger).Serve(ctx, port)
}
