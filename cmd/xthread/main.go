package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/richard-senior/xthread/internal/app"
	"github.com/richard-senior/xthread/internal/config"
	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/protocol"
	"github.com/richard-senior/xthread/pkg/server"
	"github.com/richard-senior/xthread/pkg/transport"
)

func main() {
	envFile := flag.String("env", "", "Path to a .env file (defaults to ./.env and one next to the executable)")
	verify := flag.Bool("verify", false, "Check the X credentials and exit")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Configuration error:", err)
		os.Exit(1)
	}
	// stdout carries the protocol, so logs must go elsewhere before anything is written
	if err := app.ConfigureLogging(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "Logging error:", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info(fmt.Sprintf("Starting %s %s", app.Name, app.Version))
	for i, arg := range os.Args[1:] {
		logger.Debug(fmt.Sprintf("Argument %d:", i+1), arg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *verify {
		name, err := app.VerifyCredentials(ctx, cfg)
		if err != nil {
			logger.Error("Credential check failed:", err)
			os.Exit(1)
		}
		logger.Highlight("Authenticated to X as @" + name)
		return
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start:", err)
		os.Exit(1)
	}
	defer a.Close()

	s := server.New(transport.NewStdioTransport(), a.Dispatcher, protocol.ServerInfo{Name: app.Name, Version: app.Version})
	if err := s.Start(ctx); err != nil {
		logger.Error("Server error:", err)
		os.Exit(1)
	}

	logger.Info("MCP server shutting down")
}
