package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-search/internal/weather"
)

var (
	queryCity     string
	queryLocation bool
	queryRestore  bool
	queryRefresh  bool
	queryTimeout  time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a single search and print its outcome",
	Long: `Run one search through the pipeline and print the first terminal outcome
as JSON. --refresh first restores the last search, then refreshes it bypassing
the response cache.`,
	Example: `  weather-search query --city Dallas
  weather-search query --location
  weather-search query --restore`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryCity, "city", "", "Search by city name")
	queryCmd.Flags().BoolVar(&queryLocation, "location", false, "Search by the configured device location")
	queryCmd.Flags().BoolVar(&queryRestore, "restore", false, "Repeat the last persisted search")
	queryCmd.Flags().BoolVar(&queryRefresh, "refresh", false, "Refresh the last persisted search, bypassing caches")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 30*time.Second, "How long to wait for an outcome")
	queryCmd.MarkFlagsMutuallyExclusive("city", "location", "restore", "refresh")
	queryCmd.MarkFlagsOneRequired("city", "location", "restore", "refresh")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	outcomes := a.service.Outcomes(ctx)
	a.service.Start()

	var want uint64 = 1
	switch {
	case queryCity != "":
		if !a.service.IssueCitySearch(queryCity) {
			return errors.New("city name must not be blank")
		}
	case queryLocation:
		if !a.service.IssueLocationSearch() {
			return errors.New("location search is not available: set LOCATION_LATITUDE/LOCATION_LONGITUDE or LOCATION_ADDRESS_CITY with GEOCODER_API_KEY")
		}
	case queryRestore:
		a.service.IssueRestoreLast()
	case queryRefresh:
		// Refresh works on the in-memory search, so restore it first.
		a.service.IssueRestoreLast()
		got, err := awaitSettled(ctx, outcomes, 1)
		if err != nil {
			return err
		}
		if got.Kind != weather.OutcomeSuccess {
			return printOutcome(got)
		}
		a.service.IssueRefresh()
		want = 2
	}

	got, err := awaitSettled(ctx, outcomes, want)
	if err != nil {
		return err
	}
	return printOutcome(got)
}

// awaitSettled waits for the outcome that ends decision seq. Idle counts, as a
// restore with nothing stored or a refresh with no search produces it.
func awaitSettled(ctx context.Context, outcomes <-chan weather.Outcome, seq uint64) (weather.Outcome, error) {
	for {
		select {
		case o, ok := <-outcomes:
			if !ok {
				return weather.Outcome{}, errors.New("service closed before an outcome arrived")
			}
			if o.Seq == seq && o.Kind != weather.OutcomeLoading {
				return o, nil
			}
		case <-ctx.Done():
			return weather.Outcome{}, fmt.Errorf("waiting for outcome: %w", ctx.Err())
		}
	}
}

func printOutcome(o weather.Outcome) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}
