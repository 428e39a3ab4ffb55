package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yyle88/erero"
)

func newLayoutCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Show the effective bit layout and its limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return erero.Wro(err)
			}
			layout := cfg.GeneratorLayout()
			span := time.Duration(layout.MaxTimestamp()) * time.Millisecond

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reserved bits:  %d\n", layout.ReservedBits)
			fmt.Fprintf(out, "timestamp bits: %d\n", layout.TimestampBits)
			fmt.Fprintf(out, "worker id bits: %d\n", layout.WorkerIDBits)
			fmt.Fprintf(out, "sequence bits:  %d\n", layout.SequenceBits())
			fmt.Fprintf(out, "max worker id:  %d\n", layout.MaxWorkerID())
			fmt.Fprintf(out, "ids per ms:     %d\n", layout.MaxSequence()+1)
			fmt.Fprintf(out, "timestamp span: %.1f years from epoch %d\n", span.Hours()/24/365.25, cfg.Epoch)
			fmt.Fprintf(out, "max wait:       %dms\n", cfg.MaxWaitMilli)
			return nil
		},
	}
}
