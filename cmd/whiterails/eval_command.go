package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/whiterails/internal/activity"
	"github.com/MrSnakeDoc/whiterails/internal/condition"
	"github.com/MrSnakeDoc/whiterails/internal/domain"
	"github.com/MrSnakeDoc/whiterails/internal/sysinfo"
)

func newEvalCommand() *cobra.Command {
	var (
		idle    time.Duration
		battery int
		host    bool
	)

	cmd := &cobra.Command{
		Use:   "eval CONDITION",
		Short: "Evaluate a condition against a simulated activity clock",
		Long: `Parse and evaluate a condition once.
Without --idle no activity has ever been recorded. --host samples the
real machine instead of using --battery and prints what it read.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()

			clock := activity.NewStore()
			if cmd.Flags().Changed("idle") {
				clock = activity.NewStoreAt(now.Add(-idle))
			}

			var sampler sysinfo.Sampler = sysinfo.Static{
				Snapshot: sysinfo.Snapshot{BatteryLevel: battery},
				Clock:    func() time.Time { return now },
			}
			if host {
				sampler = sysinfo.NewHostSampler()
			}
			snap := sampler.Sample(cmd.Context())
			snap.Now = now

			if host {
				if err := printHost(cmd, snap); err != nil {
					return err
				}
			}
			return printEval(cmd, args[0], clock, snap)
		},
	}
	cmd.Flags().DurationVar(&idle, "idle", 0, "time since the last recorded activity (e.g. 90s)")
	cmd.Flags().IntVar(&battery, "battery", sysinfo.FullBattery, "simulated battery level in percent")
	cmd.Flags().BoolVar(&host, "host", false, "sample the real host")
	return cmd
}

func printEval(cmd *cobra.Command, text string, clock activity.Clock, snap sysinfo.Snapshot) error {
	res := condition.EvaluateText(text, clock, snap)
	if res.Outcome == domain.OutcomeError {
		return fmt.Errorf("evaluate %q: %w", text, res.Err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Outcome, res.Reason)
	return err
}

func printHost(cmd *cobra.Command, snap sysinfo.Snapshot) error {
	battery := "none"
	if snap.HasBattery {
		battery = fmt.Sprintf("%d%%", snap.BatteryLevel)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "host: uptime %s, load1 %.2f, memory %.1f%%, battery %s\n",
		snap.Uptime.Truncate(time.Second), snap.Load1, snap.MemUsedPercent, battery)
	return err
}
