package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/vad-recorder/internal/source"
)

func newDevicesCmd(stdout io.Writer) *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices and the recorder fallback",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return listDevices(stdout, device)
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device name passed to the command-line recorder")
	return cmd
}

func listDevices(w io.Writer, device string) error {
	devices, err := source.Devices()
	switch {
	case errors.Is(err, source.ErrNativeUnavailable):
		fmt.Fprintln(w, "portaudio: not compiled in (build with -tags portaudio)")
	case err != nil:
		return fail(exitFailure, err)
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tNAME\tHOST API\tCHANNELS\tRATE\tDEFAULT")
		for _, d := range devices {
			def := ""
			if d.Default {
				def = "*"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.0f\t%s\n", d.Index, d.Name, d.HostAPI, d.Channels, d.SampleRate, def)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	cmd, err := source.ResolveRecorder(device)
	if err != nil {
		fmt.Fprintf(w, "exec: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "exec: %s\n", cmd)
	return nil
}
