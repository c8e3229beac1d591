// Command forecastctl is a small operator CLI for a running
// marine-forecast-service instance.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/surfwatch/marine-forecast-service/internal/models"
)

var (
	serverAddr string
	titler     = cases.Title(language.English)
)

func main() {
	root := &cobra.Command{
		Use:           "forecastctl",
		Short:         "Query and manage a marine-forecast-service instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:8080", "service base URL")

	root.AddCommand(forecastCmd(), spotsCmd(), refreshCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func forecastCmd() *cobra.Command {
	var lat, lon float64
	var date string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fetch the forecast for a coordinate",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("lat", fmt.Sprintf("%v", lat))
			q.Set("lon", fmt.Sprintf("%v", lon))
			if date != "" {
				q.Set("date", date)
			}

			var fc models.Forecast
			if err := getJSON("/forecast?"+q.Encode(), &fc); err != nil {
				return err
			}
			printForecast(cmd, fc)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().StringVar(&date, "date", "", "forecast date (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func spotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spots",
		Short: "List configured surf spots",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Spots []models.Spot `json:"spots"`
			}
			if err := getJSON("/spots", &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tREGION\tLAT\tLON")
			for _, s := range resp.Spots {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f\n",
					s.ID, s.Name, titler.String(s.Region), s.Coordinate.Lat, s.Coordinate.Lon)
			}
			return w.Flush()
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Trigger a batch forecast refresh over all configured spots",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodPost, serverAddr+"/refresh", nil)
			if err != nil {
				return err
			}
			resp, err := httpClient().Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("refresh: unexpected status %s", resp.Status)
			}
			var summary struct {
				Requested int `json:"requested"`
				Attempted int `json:"attempted"`
				Updated   int `json:"updated"`
				Failed    int `json:"failed"`
				Skipped   int `json:"skipped"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d of %d spots (%d failed, %d skipped for quota)\n",
				summary.Updated, summary.Requested, summary.Failed, summary.Skipped)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show quota, rate window, and cache freshness",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats struct {
				Quota struct {
					Used      int `json:"used"`
					Remaining int `json:"remaining"`
					Max       int `json:"max"`
				} `json:"quota"`
				RateWindow struct {
					InWindow int `json:"inWindow"`
					Limit    int `json:"limit"`
				} `json:"rateWindow"`
				Spots []struct {
					ID        string `json:"id"`
					Freshness string `json:"freshness"`
				} `json:"spots"`
			}
			if err := getJSON("/stats", &stats); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "quota: %d/%d used (%d remaining)\n",
				stats.Quota.Used, stats.Quota.Max, stats.Quota.Remaining)
			fmt.Fprintf(out, "rate window: %d/%d\n",
				stats.RateWindow.InWindow, stats.RateWindow.Limit)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SPOT\tFRESHNESS")
			for _, s := range stats.Spots {
				fmt.Fprintf(w, "%s\t%s\n", s.ID, titler.String(s.Freshness))
			}
			return w.Flush()
		},
	}
}

func printForecast(cmd *cobra.Command, fc models.Forecast) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s forecast (generated %s)\n",
		titler.String(string(fc.Provenance)), fc.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "waves: %.1fm @ %.0fs from %.0f°\n",
		fc.Marine.WaveHeight, fc.Marine.WavePeriod, fc.Marine.WaveDirection)
	fmt.Fprintf(out, "swell: %.1fm @ %.0fs from %.0f°\n",
		fc.Marine.SwellHeight, fc.Marine.SwellPeriod, fc.Marine.SwellDirection)
	fmt.Fprintf(out, "wind: %.1fkn gusting %.1fkn from %.0f°\n",
		fc.Marine.WindSpeed, fc.Marine.WindGust, fc.Marine.WindDirection)
	fmt.Fprintf(out, "weather: %s, %.0f°C, water %.0f°C\n",
		titler.String(fc.Weather.Condition), fc.Weather.Temperature, fc.Ocean.WaterTemperature)
	fmt.Fprintf(out, "tide: %.1fm (%s), sea state %d\n",
		fc.Ocean.TideHeight, titler.String(fc.Ocean.TideLevel), fc.Ocean.SeaState)
	if len(fc.TideSchedule) > 0 {
		fmt.Fprintln(out, "tide schedule:")
		for _, ev := range fc.TideSchedule {
			fmt.Fprintf(out, "  %s %s %.1fm\n", ev.Time, titler.String(string(ev.Type)), ev.Height)
		}
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func getJSON(path string, v interface{}) error {
	resp, err := httpClient().Get(serverAddr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
