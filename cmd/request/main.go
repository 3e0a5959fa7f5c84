package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/internal/processor"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/store"
)

func main() {
	// Parse command line flags
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "", "YAML configuration file")
	dbPath := flag.String("db", "", "Seed the models from this database")
	inputFile := flag.String("input", "", "Input file path (if not provided, stdin will be used)")
	outputFile := flag.String("output", "", "Output file path (if not provided, stdout will be used)")
	flag.Parse()

	// stdout carries the response, so logs go to file
	logger.SetShowDateTime(true)
	if err := logger.SetLogOutput('f'); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if *debug {
		logger.SetLevel(logger.DEBUG)
		logger.Debug("Debug logging enabled")
	}

	cfg, err := podds.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}
	p := processor.New(cfg)
	if *dbPath != "" {
		if err := seed(p, *dbPath); err != nil {
			logger.Fatal("Failed to seed models", err)
		}
	}

	// Determine input source
	var input []byte
	if *inputFile != "" {
		input, err = os.ReadFile(*inputFile)
		if err != nil {
			logger.Fatal("Failed to read input file", err)
		}
	} else if args := flag.Args(); len(args) > 0 {
		// a bare query such as "list" needs no payload
		request := map[string]string{
			"query":     strings.Join(args, " "),
			"requestId": fmt.Sprintf("cli-%d", os.Getpid()),
		}
		input, err = json.Marshal(request)
		if err != nil {
			logger.Fatal("Failed to create request from command line arguments", err)
		}
	} else {
		input, err = io.ReadAll(os.Stdin)
		if err != nil {
			logger.Fatal("Failed to read from stdin", err)
		}
	}

	result, err := p.ProcessRequest(input)
	if err != nil {
		logger.Error("Failed to process request", err)
		os.Exit(1)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, result, 0644); err != nil {
			logger.Fatal("Failed to write to output file", err)
		}
	} else {
		fmt.Println(string(result))
	}
}

// seed fits the score model and restores ratings from a database built by podds load
func seed(p *processor.Processor, path string) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.LoadResults("")
	if err != nil {
		return err
	}
	if err := p.Poisson().Fit(results); err != nil {
		return err
	}
	ratings, err := db.LoadRatings()
	if err != nil {
		return err
	}
	p.Elo().Restore(ratings)
	logger.Info("Seeded models with", len(results), "results and", len(ratings), "ratings")
	return nil
}
