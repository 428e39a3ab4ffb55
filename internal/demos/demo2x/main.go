package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-xlan/xuehua-go-id/xuehuaguard"
	"github.com/go-xlan/xuehua-go-id/xuehuaid"
	"github.com/go-xlan/xuehua-go-id/xuehuarun"
	"github.com/redis/go-redis/v9"
	"github.com/yyle88/rese"
)

func main() {
	// Start Redis instance to show demo
	mrd := rese.P1(miniredis.Run())
	defer mrd.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mrd.Addr(),
	})
	defer rese.F0(rdb.Close)

	guard := xuehuaguard.NewGuard(rdb, "demo:worker", 3*time.Second)
	gen := rese.P1(xuehuaid.NewWorkerGenerator(42))

	fmt.Println("Claiming worker id 42...")

	err := xuehuarun.Run(context.Background(), guard, gen, func(ctx context.Context, gen *xuehuaid.Generator) error {
		owner, err := guard.Owner(ctx, gen.WorkerID())
		if err != nil {
			return err
		}
		fmt.Printf("Worker id %d held by session %s\n", gen.WorkerID(), owner)

		for i := 1; i <= 5; i++ {
			id, err := gen.Next()
			if err != nil {
				return err
			}
			parts := gen.Decode(id)
			fmt.Printf("id %d/5: %d (sequence %d)\n", i, id, parts.Sequence)
			time.Sleep(time.Millisecond * 300)
		}
		return nil
	}, time.Millisecond*100)

	if err != nil {
		fmt.Printf("Run failed: %v\n", err)
		return
	}

	fmt.Printf("Done, worker id free again: %v\n", !mrd.Exists("demo:worker:42"))
}
