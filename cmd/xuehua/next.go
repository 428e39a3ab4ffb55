package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-xlan/xuehua-go-id/xuehuaconf"
	"github.com/go-xlan/xuehua-go-id/xuehuaid"
	"github.com/go-xlan/xuehua-go-id/xuehuarun"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/yyle88/erero"
	"github.com/yyle88/rese"
)

func newNextCmd(root *rootOptions) *cobra.Command {
	var (
		workerID int64
		epoch    int64
		count    int
		parts    bool
	)
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Generate ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return erero.Wro(err)
			}
			if cmd.Flags().Changed("worker") {
				cfg.WorkerID = workerID
			}
			if cmd.Flags().Changed("epoch") {
				cfg.Epoch = epoch
			}
			if count <= 0 {
				return erero.Errorf("count must be positive, got %d", count)
			}
			gen, err := cfg.NewGenerator()
			if err != nil {
				return erero.Wro(err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			emit := func(ctx context.Context, gen *xuehuaid.Generator) error {
				return printIDs(ctx, cmd.OutOrStdout(), gen, count, parts)
			}
			if !cfg.Guard.Enabled {
				return emit(ctx, gen)
			}
			return runGuarded(ctx, cfg, gen, emit, root)
		},
	}
	cmd.Flags().Int64VarP(&workerID, "worker", "w", 0, "worker id (overrides the config)")
	cmd.Flags().Int64Var(&epoch, "epoch", 0, "custom epoch in unix milliseconds (overrides the config)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of ids")
	cmd.Flags().BoolVar(&parts, "parts", false, "print decoded fields next to each id")
	return cmd
}

// printIDs stops as soon as ctx ends, so no id is printed after the worker id lease is lost
// printIDs 在 ctx 结束后立即停止，租约丢失后不再输出 ID
func printIDs(ctx context.Context, out io.Writer, gen *xuehuaid.Generator, count int, parts bool) error {
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return erero.Wro(context.Cause(ctx))
		}
		id, err := gen.Next()
		if err != nil {
			return erero.Wro(err)
		}
		if parts {
			fmt.Fprintln(out, describe(id, gen.Decode(id)))
		} else {
			fmt.Fprintln(out, id)
		}
	}
	return nil
}

func runGuarded(ctx context.Context, cfg *xuehuaconf.Config, gen *xuehuaid.Generator, run func(ctx context.Context, gen *xuehuaid.Generator) error, root *rootOptions) error {
	rds := redis.NewClient(cfg.RedisOptions())
	defer rese.F0(rds.Close)

	guard := cfg.NewGuard(rds)
	return xuehuarun.RunWithLogger(ctx, guard, gen, run, 100*time.Millisecond, root.logger())
}
