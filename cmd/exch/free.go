package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/exchtools/exch/internal/interval"
	"github.com/exchtools/exch/internal/output"
	"github.com/exchtools/exch/internal/schedule"
	"github.com/exchtools/exch/libexch"
)

// searchWindow spans whole days from today in the configured zone.
func searchWindow(weeks int) (interval.Range, error) {
	loc, err := cfg.Location()
	if err != nil {
		return interval.Range{}, err
	}
	now := time.Now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return interval.Range{Start: start, End: start.AddDate(0, 0, 7*weeks)}, nil
}

// fetchBusy prefers the companion daemon; the direct path fans out one
// availability request per mailbox.
func fetchBusy(ctx context.Context, emails []string, window interval.Range) (map[string][]schedule.Busy, error) {
	if r := reachableRemote(ctx); r != nil {
		return r.Busy(ctx, emails, window)
	}
	client, err := ewsClient()
	if err != nil {
		return nil, err
	}
	return libexch.GatherBusy(ctx, client, emails, window)
}

// policyFromFlags starts from the configured working hours and applies
// any overriding flags.
func policyFromFlags(cmd *cobra.Command) schedule.Policy {
	policy := cfg.Policy()
	if cmd.Flags().Changed("start-hour") {
		policy.StartHour, _ = cmd.Flags().GetInt("start-hour")
	}
	if cmd.Flags().Changed("end-hour") {
		policy.EndHour, _ = cmd.Flags().GetInt("end-hour")
	}
	if v, _ := cmd.Flags().GetBool("include-weekends"); v {
		policy.ExcludeWeekends = false
	}
	return policy
}

func addPolicyFlags(cmd *cobra.Command) {
	cmd.Flags().Int("weeks", 2, "How many weeks ahead to search")
	cmd.Flags().Int("duration", 30, "Minimum slot length in minutes")
	cmd.Flags().Int("limit", 10, "Maximum number of slots (0 = all)")
	cmd.Flags().Int("start-hour", 0, "Workday start hour (overrides config)")
	cmd.Flags().Int("end-hour", 0, "Workday end hour (overrides config)")
	cmd.Flags().Bool("include-weekends", false, "Include Saturday and Sunday")
}

func writeSlots(cmd *cobra.Command, slots []schedule.Slot) error {
	f := chosenFormat(cmd)
	if f != output.Text {
		return output.Write(os.Stdout, f, slots)
	}
	if len(slots) == 0 {
		fmt.Println("No free slots found.")
		return nil
	}
	output.PrintSlots(os.Stdout, slots)
	return nil
}

var freeCmd = &cobra.Command{
	Use:   "free",
	Short: "Find free slots in your own calendar",
	Long: `Find free slots in the configured account's calendar, e.g.

  exch free --weeks 1 --duration 60`,
	RunE: func(cmd *cobra.Command, args []string) error {
		acct := account(cmd)
		if acct == "" {
			return fmt.Errorf("no account configured; run 'exch config set account you@example.com'")
		}

		weeks, _ := cmd.Flags().GetInt("weeks")
		minutes, _ := cmd.Flags().GetInt("duration")
		limit, _ := cmd.Flags().GetInt("limit")

		window, err := searchWindow(weeks)
		if err != nil {
			return err
		}
		busy, err := fetchBusy(cmd.Context(), []string{acct}, window)
		if err != nil {
			return fmt.Errorf("fetch availability: %w", err)
		}

		slots := schedule.FindSlots(busy[acct], window, policyFromFlags(cmd),
			time.Duration(minutes)*time.Minute, limit)
		return writeSlots(cmd, slots)
	},
}

var pplCmd = &cobra.Command{
	Use:   "ppl",
	Short: "Look at other people's availability",
}

var pplAgendaCmd = &cobra.Command{
	Use:   "agenda <person>",
	Short: "Show when a person is busy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := resolvePerson(args[0])
		if err != nil {
			return err
		}
		weeks, _ := cmd.Flags().GetInt("weeks")
		window, err := searchWindow(weeks)
		if err != nil {
			return err
		}

		busy, err := fetchBusy(cmd.Context(), []string{email}, window)
		if err != nil {
			return fmt.Errorf("fetch availability: %w", err)
		}

		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, busy[email])
		}

		if len(busy[email]) == 0 {
			fmt.Printf("%s has no busy time in the next %d week(s).\n", email, weeks)
			return nil
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		fmt.Printf("Busy times for %s:\n", email)
		for _, b := range busy[email] {
			start := b.Range.Start.In(loc)
			end := b.Range.End.In(loc)
			fmt.Printf("  %s  %s - %s\n",
				start.Format("Mon 2006-01-02"),
				start.Format("15:04"),
				end.Format("15:04"))
		}
		return nil
	},
}

var pplFreeCmd = &cobra.Command{
	Use:   "free <person>...",
	Short: "Find free slots in one or more people's calendars",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		emails, err := resolvePeople(args)
		if err != nil {
			return err
		}
		weeks, _ := cmd.Flags().GetInt("weeks")
		minutes, _ := cmd.Flags().GetInt("duration")
		limit, _ := cmd.Flags().GetInt("limit")

		window, err := searchWindow(weeks)
		if err != nil {
			return err
		}
		busy, err := fetchBusy(cmd.Context(), emails, window)
		if err != nil {
			return fmt.Errorf("fetch availability: %w", err)
		}

		slots, err := schedule.CommonSlots(busy, window, policyFromFlags(cmd),
			time.Duration(minutes)*time.Minute, limit, schedule.AllowSingle())
		if err != nil {
			return err
		}
		return writeSlots(cmd, slots)
	},
}

var pplCommonCmd = &cobra.Command{
	Use:   "common <person> <person>...",
	Short: "Find slots where everyone is free",
	Long: `Find time slots that are free for every listed person, e.g.

  exch ppl common anna bob --duration 60 --weeks 1`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		emails, err := resolvePeople(args)
		if err != nil {
			return err
		}
		weeks, _ := cmd.Flags().GetInt("weeks")
		minutes, _ := cmd.Flags().GetInt("duration")
		limit, _ := cmd.Flags().GetInt("limit")

		window, err := searchWindow(weeks)
		if err != nil {
			return err
		}
		busy, err := fetchBusy(cmd.Context(), emails, window)
		if err != nil {
			return fmt.Errorf("fetch availability: %w", err)
		}

		slots, err := schedule.CommonSlots(busy, window, policyFromFlags(cmd),
			time.Duration(minutes)*time.Minute, limit)
		if err != nil {
			return err
		}
		return writeSlots(cmd, slots)
	},
}

func init() {
	addPolicyFlags(freeCmd)
	addPolicyFlags(pplFreeCmd)
	addPolicyFlags(pplCommonCmd)
	pplAgendaCmd.Flags().Int("weeks", 1, "How many weeks ahead to look")

	pplCmd.AddCommand(pplAgendaCmd)
	pplCmd.AddCommand(pplFreeCmd)
	pplCmd.AddCommand(pplCommonCmd)
}
