// Command mcp-server exposes the trip search over the Model Context
// Protocol on stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/db"
	"github.com/gilby125/tripfinder/fares"
	"github.com/gilby125/tripfinder/pkg/buildinfo"
	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/gilby125/tripfinder/trips"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/text/currency"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol.
	logger.Init(logger.Config{Level: cfg.LoggingConfig.Level, Format: cfg.LoggingConfig.Format, Output: os.Stderr})

	ctx := context.Background()
	neo4jDB, err := db.NewNeo4jDB(ctx, cfg.Neo4jConfig)
	if err != nil {
		logger.Fatal(err, "Failed to connect to Neo4j")
	}
	defer neo4jDB.Close(ctx)

	unit, err := currency.ParseISO(strings.ToUpper(cfg.FareConfig.Currency))
	if err != nil {
		logger.Fatal(err, "Invalid fare currency", "currency", cfg.FareConfig.Currency)
	}
	fareClient := fares.NewClient(fares.Options{
		BaseURL:           cfg.FareConfig.BaseURL,
		Currency:          unit,
		RequestsPerSecond: cfg.FareConfig.RequestsPerSecond,
		Burst:             cfg.FareConfig.Burst,
		Timeout:           cfg.FareConfig.Timeout,
		MaxRetries:        cfg.FareConfig.MaxRetries,
		BrowserCookies:    cfg.FareConfig.BrowserCookies,
		Rates:             fares.NewFrankfurterRates(cfg.FareConfig.RatesURL, nil, cfg.FareConfig.RatesTTL),
	})

	assembler := trips.NewAssembler(fareClient, nil, trips.AssemblerOptions{
		Concurrency:      cfg.SearchConfig.Concurrency,
		FailurePolicy:    cfg.SearchConfig.FailurePolicy,
		CandidateTimeout: cfg.SearchConfig.CandidateTimeout,
	})
	service := trips.NewService(neo4jDB, assembler, trips.ServiceOptions{Timeout: cfg.SearchConfig.Timeout})

	s := server.NewMCPServer(
		"tripfinder-mcp",
		buildinfo.Version,
		server.WithLogging(),
	)
	s.AddTool(searchTripsTool(), searchTripsHandler(service, cfg.SearchConfig))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
	}
}
