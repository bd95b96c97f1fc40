package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/ingest"
	"sheild-gateway/internal/logger"
	"sheild-gateway/internal/prediction"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var analyzeOpts struct {
	machineID string
	remoteURL string
	token     string
	timeout   time.Duration
	jsonOut   bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.csv>",
	Short: "Average a CSV dataset and print one prediction for it",
	Long: `analyze reads a CSV with vibration, temperature and current columns,
averages the valid rows and runs a single prediction over the averages.

The built-in scorer is used unless --remote names a prediction service.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeOpts.machineID, "machine", "m", "", "machine id when the file has no machineId column")
	f.StringVar(&analyzeOpts.remoteURL, "remote", "", "prediction service base URL, e.g. http://localhost:5000/api")
	f.StringVar(&analyzeOpts.token, "token", "", "bearer token for the prediction service")
	f.DurationVar(&analyzeOpts.timeout, "timeout", 15*time.Second, "prediction request timeout")
	f.BoolVar(&analyzeOpts.jsonOut, "json", false, "print the analysis as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	var client prediction.PredictionClient = prediction.Scorer{}
	if analyzeOpts.remoteURL != "" {
		client = prediction.NewHTTPClient(prediction.ClientConfig{
			BaseURL: analyzeOpts.remoteURL,
			Token:   analyzeOpts.token,
			Timeout: analyzeOpts.timeout,
		})
	}

	log, err := logger.New(logger.Config{Level: "warn", Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	res, err := ingest.NewAnalyzer(client, nil, log).Analyze(cmd.Context(), string(raw), analyzeOpts.machineID)
	if err != nil {
		return err
	}

	if analyzeOpts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return renderAnalysis(res)
}

func renderAnalysis(a *ingest.Analysis) error {
	pterm.DefaultSection.Printfln("Machine %s (%d rows)", a.MachineID, a.Rows)

	status := pterm.Success
	if a.View.Faulty {
		status = pterm.Error
	}
	status.Printfln("%s with %d%% confidence", a.View.Label, a.View.Confidence)
	pterm.Info.Printfln("Remaining useful life: %s hours", strconv.FormatFloat(a.View.RULHours, 'f', -1, 64))

	averages := featureValues(a.Features)
	table := pterm.TableData{{"Feature", "Average", "Importance", ""}}
	for _, b := range a.View.Bars {
		table = append(table, []string{
			b.Feature,
			strconv.FormatFloat(averages[b.Feature], 'f', -1, 64),
			fmt.Sprintf("%d%%", b.Percent),
			strings.Repeat("█", b.Cells) + strings.Repeat("░", prediction.BarWidth-b.Cells),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader(true).WithData(table).Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	if len(a.MachineIDs) > 1 {
		pterm.Warning.Printfln("dataset names %d machines (%s), reported as %s",
			len(a.MachineIDs), strings.Join(a.MachineIDs, ", "), a.MachineID)
	}
	if n := len(a.RowErrors); n > 0 {
		pterm.Warning.Printfln("%d rows skipped, first: %s", n, a.RowErrors[0].Error())
	}
	pterm.Println()
	pterm.Println(a.View.Narrative)
	return nil
}

func featureValues(f data.FeatureSet) map[string]float64 {
	return map[string]float64{
		"vibration":   f.Vibration,
		"temperature": f.Temperature,
		"current":     f.Current,
	}
}
