package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/exchtools/exch/internal/dateparse"
	"github.com/exchtools/exch/internal/interval"
	"github.com/exchtools/exch/internal/output"
	"github.com/exchtools/exch/internal/schedule"
	"github.com/exchtools/exch/libexch"
)

var calCmd = &cobra.Command{
	Use:     "cal",
	Aliases: []string{"calendar"},
	Short:   "Manage the calendar",
}

// calWindow resolves positional args like "tomorrow", "next week" or
// "kw30" into a day window. No args means today.
func calWindow(args []string, now time.Time) (interval.Range, error) {
	loc, err := cfg.Location()
	if err != nil {
		return interval.Range{}, err
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		text = "today"
	}
	expr, err := dateparse.ParseDay(text, now, loc)
	if err != nil {
		return interval.Range{}, err
	}
	return expr.Span, nil
}

// fetchEvents prefers the companion daemon and falls back to EWS.
func fetchEvents(ctx context.Context, window interval.Range) ([]libexch.Event, error) {
	if r := reachableRemote(ctx); r != nil {
		return r.Events(ctx, window)
	}
	client, err := ewsClient()
	if err != nil {
		return nil, err
	}
	return client.FindCalendarItems(ctx, window)
}

var calShowCmd = &cobra.Command{
	Use:   "show [expression]",
	Short: "Show appointments",
	Long: `Show appointments for a day or span, e.g.

  exch cal show
  exch cal show tomorrow
  exch cal show next week
  exch cal show kw30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := calWindow(args, time.Now())
		if err != nil {
			return err
		}

		events, err := fetchEvents(cmd.Context(), window)
		if err != nil {
			return fmt.Errorf("fetch calendar: %w", err)
		}

		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, events)
		}

		if len(events) == 0 {
			fmt.Println("No appointments.")
			return nil
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		for _, ev := range events {
			start := ev.Start.In(loc)
			end := ev.End.In(loc)
			line := fmt.Sprintf("%s  %s - %s  %s",
				start.Format("Mon 2006-01-02"),
				start.Format("15:04"),
				end.Format("15:04"),
				ev.Subject)
			if ev.Location != "" {
				line += fmt.Sprintf("  (%s)", ev.Location)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var calAddCmd = &cobra.Command{
	Use:   "add <expression>",
	Short: "Create an appointment from a natural-language phrase",
	Long: `Create an appointment. The phrase carries date, time, title,
attendees and duration, e.g.

  exch cal add friday 2pm-4pm Workshop
  exch cal add tomorrow 10am Standup with anna and bob@example.com
  exch cal add "Sprint Review" next friday 14:00 for 90m`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		in, err := dateparse.ParseInput(strings.Join(args, " "), time.Now(), loc, parserOpts()...)
		if err != nil {
			return err
		}

		explicit := in.Duration
		if mins, _ := cmd.Flags().GetInt("duration"); mins > 0 {
			explicit = time.Duration(mins) * time.Minute
		}
		location, _ := cmd.Flags().GetString("location")

		spec, err := schedule.BuildEvent(in.Expr, explicit, in.Title, in.Attendees, location, cfg.DefaultDuration())
		if err != nil {
			if errors.Is(err, schedule.ErrDayWindowEvent) {
				return fmt.Errorf("%w: add a time of day, e.g. \"friday 2pm %s\"", err, in.Title)
			}
			return err
		}

		ctx := cmd.Context()
		var id string
		if r := reachableRemote(ctx); r != nil {
			id, err = r.CreateEvent(ctx, spec)
		} else {
			var client *libexch.Client
			client, err = ewsClient()
			if err == nil {
				id, err = client.CreateCalendarItem(ctx, spec)
			}
		}
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		f := chosenFormat(cmd)
		if f != output.Text {
			return output.Write(os.Stdout, f, output.ActionResponse{Success: true, Message: "created", ID: id})
		}
		fmt.Printf("Created %q  %s - %s\n",
			spec.Title,
			spec.Range.Start.In(loc).Format("Mon 2006-01-02 15:04"),
			spec.Range.End.In(loc).Format("15:04"))
		if len(spec.Attendees) > 0 {
			fmt.Printf("Invited: %s\n", strings.Join(spec.Attendees, ", "))
		}
		return nil
	},
}

var calDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an appointment",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			return fmt.Errorf("--id is required (see 'exch cal show --json' for ids)")
		}

		ctx := cmd.Context()
		var err error
		if r := reachableRemote(ctx); r != nil {
			err = r.DeleteEvent(ctx, id)
		} else {
			var client *libexch.Client
			client, err = ewsClient()
			if err == nil {
				err = client.DeleteItem(ctx, id)
			}
		}
		if err != nil {
			return fmt.Errorf("delete appointment: %w", err)
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var calExportCmd = &cobra.Command{
	Use:   "export [expression]",
	Short: "Export appointments as iCalendar",
	Long: `Export appointments of a day or span as an .ics file, e.g.

  exch cal export next week --output week.ics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := calWindow(args, time.Now())
		if err != nil {
			return err
		}
		events, err := fetchEvents(cmd.Context(), window)
		if err != nil {
			return fmt.Errorf("fetch calendar: %w", err)
		}

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			defer f.Close()
			out = f
		}

		exported := make([]output.Event, len(events))
		for i, ev := range events {
			exported[i] = output.Event{
				ID:        ev.ID,
				Subject:   ev.Subject,
				Start:     ev.Start,
				End:       ev.End,
				Location:  ev.Location,
				Organizer: ev.Organizer,
			}
		}
		return output.WriteICS(out, exported)
	},
}

func init() {
	calAddCmd.Flags().Int("duration", 0, "Duration in minutes (overrides the phrase)")
	calAddCmd.Flags().String("location", "", "Location")
	calDeleteCmd.Flags().String("id", "", "Item id to delete")
	calExportCmd.Flags().String("output", "", "Write to this file instead of stdout")

	calCmd.AddCommand(calShowCmd)
	calCmd.AddCommand(calAddCmd)
	calCmd.AddCommand(calDeleteCmd)
	calCmd.AddCommand(calExportCmd)
}
