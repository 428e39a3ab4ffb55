package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-xlan/xuehua-go-id/internal/utils"
	"github.com/go-xlan/xuehua-go-id/xuehuaid"
	"github.com/yyle88/rese"
)

func main() {
	// Epoch 2024-01-01 keeps the timestamp field small
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	gen := rese.P1(xuehuaid.NewWorkerGenerator(1, xuehuaid.WithEpoch(epoch)))

	fmt.Println("=== Same millisecond: only the sequence moves ===")
	for i := 0; i < 3; i++ {
		show(gen, fmt.Sprintf("worker 1 - round %d", i+1), gen.MustNext())
	}

	fmt.Println("\n=== Another worker: the worker field changes ===")
	other := rese.P1(xuehuaid.NewWorkerGenerator(1023, xuehuaid.WithEpoch(epoch)))
	show(other, "worker 1023", other.MustNext())

	time.Sleep(100 * time.Millisecond)
	fmt.Println("\n=== 100ms later: the timestamp field changes ===")
	show(gen, "worker 1 - later", gen.MustNext())
}

func show(gen *xuehuaid.Generator, title string, id int64) {
	layout := gen.Layout()
	parts := gen.Decode(id)
	seq := layout.SequenceBits()

	fmt.Printf("\n[%s]\n", title)
	fmt.Printf("id: %d\n", id)
	fmt.Println(strings.Repeat("-", 96))
	fmt.Printf("| %-8s | %-44s | %-12s | %-14s |\n", "reserved", "timestamp", "worker", "sequence")
	fmt.Println(strings.Repeat("-", 96))
	fmt.Printf("| %-8s | %-44s | %-12s | %-14s |\n",
		utils.FormatBits(uint64(id)>>(64-layout.ReservedBits), layout.ReservedBits),
		utils.FormatBits(uint64(id)>>(seq+layout.WorkerIDBits), layout.TimestampBits),
		utils.FormatBits(uint64(id)>>seq, layout.WorkerIDBits),
		utils.FormatBits(uint64(id), seq))
	fmt.Println(strings.Repeat("-", 96))
	fmt.Printf("time=%s worker=%d sequence=%d\n", parts.Time().UTC().Format(time.RFC3339Nano), parts.WorkerID, parts.Sequence)
}
