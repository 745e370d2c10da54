// Package devices implements the command that lists audio input devices.
package devices

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/audiocore/sources"
	"github.com/vesperrec/vesper-recorder/internal/conf"
	"github.com/vesperrec/vesper-recorder/internal/logger"
)

// Command creates a new command that lists input devices.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Long:  "List the input devices of the configured audio driver. The selected device is marked with an asterisk.",
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := sources.NewDriver(settings.Input.Driver, logger.Global().Module("audio"))
			if err != nil {
				return err
			}
			devices, err := driver.InputDevices()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if selector, _ := cmd.Flags().GetString("find"); selector != "" {
				d, err := sources.ResolveDevice(devices, selector)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%d\t%s\n", d.Index, d.Name)
				return err
			}
			return printDevices(out, devices, settings.Input.DeviceIndex)
		},
	}

	cmd.Flags().String("find", "", "Print the device matching a selector: \"default\", an index, or a name")
	return cmd
}

func printDevices(w io.Writer, devices []audiocore.InputDevice, selected int) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No input devices were found.")
		return err
	}
	found := false
	for _, d := range devices {
		mark := " "
		if d.Index == selected {
			mark = "*"
			found = true
		}
		suffix := ""
		if d.Default {
			suffix = " (default)"
		}
		if _, err := fmt.Fprintf(w, "%s%3d  %s, %d channel%s%s\n",
			mark, d.Index, d.Name, d.InputChannelCount, plural(d.InputChannelCount), suffix); err != nil {
			return err
		}
	}
	if !found {
		_, err := fmt.Fprintf(w, "\nThere is no input device with index %d.\n", selected)
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
