package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weather-search",
	Short: "Current-weather lookups by city, device location or last search",
	Long: `weather-search runs city, location, refresh and restore searches against
OpenWeatherMap. Only the newest search is ever reported; a newer one cancels
any search still in flight. The last successful search is remembered so it can
be restored or refreshed later.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("ERROR: %v", err)
		os.Exit(1)
	}
}
