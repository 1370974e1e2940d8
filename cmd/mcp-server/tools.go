package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gilby125/tripfinder/api"
	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/trips"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const defaultResultLimit = 20

// Searcher runs trip searches.
type Searcher interface {
	Search(ctx context.Context, req trips.SearchRequest) (*trips.Result, error)
}

func searchTripsTool() mcp.Tool {
	return mcp.NewTool("search_trips",
		mcp.WithDescription("Find the cheapest round trips from a set of home airports, including one-hop detours where you fly into one airport and home from a nearby one. Results are sorted by total fare."),
		mcp.WithString("outbound_origins",
			mcp.Required(),
			mcp.Description("Comma-separated IATA codes to fly out from (e.g. SNN,DUB)"),
		),
		mcp.WithString("return_origins",
			mcp.Description("Comma-separated IATA codes to fly home to. Defaults to outbound_origins."),
		),
		mcp.WithString("outbound_dates",
			mcp.Required(),
			mcp.Description("Comma-separated outbound dates (YYYY-MM-DD)"),
		),
		mcp.WithString("return_dates",
			mcp.Required(),
			mcp.Description("Comma-separated return dates (YYYY-MM-DD)"),
		),
		mcp.WithString("stay_lengths",
			mcp.Description("Comma-separated stay lengths in days (e.g. 3,4). Empty allows any."),
		),
		mcp.WithString("blacklist_countries",
			mcp.Description("Comma-separated countries or REGION:* tokens to exclude"),
		),
		mcp.WithString("whitelist_countries",
			mcp.Description("Comma-separated countries or REGION:* tokens to restrict to"),
		),
		mcp.WithBoolean("same_airport_return",
			mcp.Description("Return to the airport you flew out from"),
		),
		mcp.WithNumber("max_distance_km",
			mcp.Description("Enables detours: maximum ground distance between arrival and departure airports"),
		),
		mcp.WithNumber("adults",
			mcp.Description("Number of adults (default 1)"),
		),
		mcp.WithString("currency",
			mcp.Description("Currency code (e.g. EUR, GBP). Defaults to the server currency."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum itineraries returned (default 20)"),
		),
	)
}

func searchTripsHandler(s Searcher, cfg config.SearchConfig) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("Invalid arguments format"), nil
		}

		body := api.TripSearchBody{
			OutboundOrigins:    splitArg(argsMap, "outbound_origins"),
			ReturnOrigins:      splitArg(argsMap, "return_origins"),
			OutboundDates:      splitArg(argsMap, "outbound_dates"),
			ReturnDates:        splitArg(argsMap, "return_dates"),
			BlacklistCountries: splitArg(argsMap, "blacklist_countries"),
			WhitelistCountries: splitArg(argsMap, "whitelist_countries"),
		}
		if len(body.ReturnOrigins) == 0 {
			body.ReturnOrigins = body.OutboundOrigins
		}
		body.SameAirportReturn, _ = argsMap["same_airport_return"].(bool)
		body.Currency, _ = argsMap["currency"].(string)
		if v, ok := argsMap["adults"].(float64); ok {
			body.Adults = int(v)
		}
		if v, ok := argsMap["max_distance_km"].(float64); ok {
			body.MaxDistanceKm = &v
		}
		for _, part := range splitArg(argsMap, "stay_lengths") {
			n, err := strconv.Atoi(part)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid stay length %q", part)), nil
			}
			body.StayLengths = append(body.StayLengths, n)
		}
		limit := defaultResultLimit
		if v, ok := argsMap["limit"].(float64); ok && v >= 1 {
			limit = int(v)
		}

		req, err := api.BuildSearchRequest(body, cfg)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result, err := s.Search(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error searching trips: %v", err)), nil
		}

		items := result.Itineraries
		if len(items) > limit {
			items = items[:limit]
		}
		response := map[string]interface{}{
			"search_id":   result.ID.String(),
			"total":       len(result.Itineraries),
			"stats":       result.Stats,
			"itineraries": items,
		}
		jsonBytes, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error marshaling response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}
}

// splitArg reads a comma-separated string argument. JSON arrays of strings
// are accepted too.
func splitArg(args map[string]interface{}, key string) []string {
	var raw []string
	switch v := args[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
