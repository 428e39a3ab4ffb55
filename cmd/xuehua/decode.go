package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-xlan/xuehua-go-id/internal/utils"
	"github.com/go-xlan/xuehua-go-id/xuehuaid"
	"github.com/spf13/cobra"
	"github.com/yyle88/erero"
)

func newDecodeCmd(root *rootOptions) *cobra.Command {
	var (
		epoch int64
		bits  bool
	)
	cmd := &cobra.Command{
		Use:   "decode ID [ID...]",
		Short: "Split ids into timestamp, worker id and sequence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return erero.Wro(err)
			}
			if cmd.Flags().Changed("epoch") {
				cfg.Epoch = epoch
			}
			layout := cfg.GeneratorLayout()
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return erero.Errorf("bad id %q: %v", arg, err)
				}
				parts := layout.Decode(id, cfg.Epoch)
				fmt.Fprintln(cmd.OutOrStdout(), describe(id, parts))
				if bits {
					fmt.Fprintln(cmd.OutOrStdout(), renderBits(layout, id))
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&epoch, "epoch", 0, "custom epoch in unix milliseconds (overrides the config)")
	cmd.Flags().BoolVar(&bits, "bits", false, "also print every field in binary")
	return cmd
}

func describe(id int64, parts xuehuaid.Parts) string {
	return fmt.Sprintf("%d timestamp=%d time=%s worker=%d sequence=%d",
		id, parts.Timestamp, parts.Time().UTC().Format(time.RFC3339Nano), parts.WorkerID, parts.Sequence)
}

// renderBits prints the raw fields of id, reserved bits included
func renderBits(layout xuehuaid.Layout, id int64) string {
	u := uint64(id)
	seq := layout.SequenceBits()
	fields := []struct {
		name  string
		width uint8
		shift uint8
	}{
		{"reserved", layout.ReservedBits, 64 - layout.ReservedBits},
		{"timestamp", layout.TimestampBits, seq + layout.WorkerIDBits},
		{"worker", layout.WorkerIDBits, seq},
		{"sequence", seq, 0},
	}
	var sb strings.Builder
	for i, field := range fields {
		if i > 0 {
			sb.WriteString(" ")
		}
		var value uint64
		if field.shift < 64 {
			value = u >> field.shift
		}
		sb.WriteString(field.name + "=" + utils.FormatBits(value, field.width))
	}
	return sb.String()
}
