// Package schedule implements the command that prints the compiled
// recording schedule.
package schedule

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesperrec/vesper-recorder/internal/conf"
	sched "github.com/vesperrec/vesper-recorder/internal/schedule"
	"github.com/vesperrec/vesper-recorder/internal/status"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// Command creates a new command that prints scheduled recordings.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the recording schedule",
		Long: "Compile the schedule from the settings, or from a YAML rule file, " +
			"and print its intervals in the station time zone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := compile(cmd, settings)
			if err != nil {
				return err
			}
			count, _ := cmd.Flags().GetInt("count")
			all, _ := cmd.Flags().GetBool("all")
			return printSchedule(cmd.OutOrStdout(), s, time.Now(), count, all)
		},
	}

	cmd.Flags().String("file", "", "YAML schedule rule file to compile instead of the settings")
	cmd.Flags().Int("count", 20, "Maximum number of intervals to print, 0 for no limit")
	cmd.Flags().Bool("all", false, "Include intervals that have already ended")
	return cmd
}

func compile(cmd *cobra.Command, settings *conf.Settings) (*sched.Schedule, error) {
	mode, err := sched.ParseCoalesceMode(settings.ScheduleCoalesce)
	if err != nil {
		return nil, err
	}
	opts := sched.Options{
		Latitude:  settings.Station.Latitude,
		Longitude: settings.Station.Longitude,
		TimeZone:  settings.Station.TimeZone,
		Coalesce:  mode,
	}

	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return sched.Compile(settings.Schedule, opts)
	}
	data, err := os.ReadFile(settings.ResolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("error reading schedule file: %w", err)
	}
	return sched.CompileYAML(data, opts)
}

func printSchedule(w io.Writer, s *sched.Schedule, now time.Time, count int, all bool) error {
	loc := s.Location()
	if s.Empty() {
		_, err := fmt.Fprintln(w, "No recordings are scheduled.")
		return err
	}

	intervals := s.From(now)
	if all {
		intervals = s.All()
	}
	if _, err := fmt.Fprintf(w, "%d scheduled interval%s, times in %s:\n", s.Len(), plural(s.Len()), loc); err != nil {
		return err
	}

	printed := 0
	for iv := range intervals {
		if count > 0 && printed == count {
			break
		}
		if _, err := fmt.Fprintf(w, "%s  to  %s  %10s  %s\n",
			iv.Start.In(loc).Format(timeLayout),
			iv.End.In(loc).Format(timeLayout),
			iv.Duration(),
			status.IntervalStatus(iv, now)); err != nil {
			return err
		}
		printed++
	}
	if printed == 0 {
		_, err := fmt.Fprintln(w, "All scheduled recordings have ended.")
		return err
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
