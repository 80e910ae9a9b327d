package bakeops

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bakeops/bakeops/api/pkg/headless"
	"github.com/bakeops/bakeops/api/pkg/simulation"
	"github.com/bakeops/bakeops/api/pkg/store/memorystore"
	"github.com/bakeops/bakeops/api/pkg/system"
)

func newHeadlessCmd() *cobra.Command {
	headlessCmd := &cobra.Command{
		Use:   "headless",
		Short: "Run a simulated bakery day from a scenario file.",
		Long: `Run a whole simulated day synchronously and print a report.

The scenario file (YAML or JSON) carries the bake specs, the forecast,
the preset order tape and the run options:

date: "2026-03-14"
mode: preset
algorithm: predictive
interval_minutes: 60
auto_add: true

specs:
  - item_guid: croissant
    display_name: Croissant
    capacity_per_rack: 24
    bake_time_minutes: 20
    cool_time_minutes: 10
    oven: 1

forecast:
  croissant: 120

curve:
  croissant:
    - time: "08:00"
      units: 40

orders:
  - item_guid: croissant
    quantity: 24
    time: "08:15"

Examples:
  # Replay a preset day and print the step-by-step report
  bakeops headless -f day.yaml

  # Same, totals only
  bakeops headless -f day.yaml --condensed`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filename, err := cmd.Flags().GetString("filename")
			if err != nil {
				return err
			}
			condensed, err := cmd.Flags().GetBool("condensed")
			if err != nil {
				return err
			}
			return runHeadless(cmd, filename, condensed)
		},
	}

	headlessCmd.Flags().StringP("filename", "f", "", "Scenario file to run (YAML or JSON)")
	_ = headlessCmd.MarkFlagRequired("filename")
	headlessCmd.Flags().Bool("condensed", false, "Print totals only, without the interval table")

	return headlessCmd
}

func runHeadless(cmd *cobra.Command, filename string, condensed bool) error {
	system.SetupLogging()

	scenario, err := headless.LoadScenario(filename)
	if err != nil {
		return err
	}

	cfg, err := NewServeConfig()
	if err != nil {
		return err
	}

	// Headless runs are self-contained: the scenario's specs live in
	// memory for the run and nothing touches postgres.
	db := memorystore.New()
	for _, spec := range scenario.BakeSpecs() {
		if _, err := db.CreateBakeSpec(cmd.Context(), spec); err != nil {
			return err
		}
	}

	manager, err := simulation.NewManager(cfg, &simulation.ManagerParams{Store: db})
	if err != nil {
		return err
	}

	req, err := scenario.RunRequest()
	if err != nil {
		return err
	}
	if condensed {
		req.Condensed = true
	}

	report, err := headless.NewRunner(cfg, manager).Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	headless.WriteReport(os.Stdout, report)
	return nil
}
