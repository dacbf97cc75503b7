package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/richard-senior/xthread/internal/app"
	"github.com/richard-senior/xthread/internal/config"
	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/internal/processor"
)

func main() {
	envFile := flag.String("env", "", "Path to a .env file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	tool := flag.String("tool", "", "Tool to call; when empty the request is read from -input or stdin")
	args := flag.String("args", "{}", "JSON object of arguments for -tool")
	inputFile := flag.String("input", "", "File holding a request object or an array of them (default stdin)")
	outputFile := flag.String("output", "", "Output file path (if not provided, stdout will be used)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Configuration error:", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := app.ConfigureLogging(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "Logging error:", err)
		os.Exit(1)
	}
	defer logger.Close()

	input, err := readInput(*tool, *args, *inputFile)
	if err != nil {
		logger.Fatal("Failed to read request", err)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to start", err)
	}
	defer a.Close()

	results, err := processor.ProcessRequest(ctx, a.Dispatcher, input)
	if err != nil {
		logger.Error("Failed to process request", err)
		os.Exit(2)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode results", err)
	}
	out = append(out, '\n')

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, out, 0644); err != nil {
			logger.Fatal("Failed to write to output file", err)
		}
	} else {
		os.Stdout.Write(out)
	}

	if processor.Failed(results) {
		os.Exit(1)
	}
}

func readInput(tool, args, inputFile string) ([]byte, error) {
	if tool != "" {
		var arguments map[string]any
		if err := json.Unmarshal([]byte(args), &arguments); err != nil {
			return nil, fmt.Errorf("-args is not a JSON object: %w", err)
		}
		return json.Marshal(processor.Request{Tool: tool, Arguments: arguments})
	}
	if inputFile != "" {
		return os.ReadFile(inputFile)
	}
	return io.ReadAll(os.Stdin)
}
