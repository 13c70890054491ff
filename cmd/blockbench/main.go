// Command blockbench drives a table through a burst of inserts and a full
// scan, on a schedule of periodic checkpoints, to exercise the pager and
// table packages the way a real workload would.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kisechan/blockstore/internal/pager"
	"github.com/kisechan/blockstore/internal/table"
)

func main() {
	dir := flag.String("dir", "./blockbench-data", "directory holding the table file")
	tableName := flag.String("table", "bench", "table file name, without extension")
	records := flag.Int("records", 10000, "number of records to insert")
	frames := flag.Int("frames", 64, "buffer pool capacity, in frames")
	checkpoint := flag.String("checkpoint", "@every 5s", "cron schedule for periodic checkpoints")
	flag.Parse()

	session := uuid.New()
	log.Printf("blockbench[%s]: starting run: dir=%s table=%s records=%s frames=%d",
		session, *dir, *tableName, humanize.Comma(int64(*records)), *frames)

	if err := run(session, *dir, *tableName, *records, *frames, *checkpoint); err != nil {
		log.Fatalf("blockbench[%s]: %v", session, err)
	}
}

func run(session uuid.UUID, dir, tableName string, records, frames int, checkpointSchedule string) error {
	path := filepath.Join(dir, tableName+".blk")
	cfg := pager.DefaultConfig()

	tbl, err := table.Create(cfg, path, frames)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	defer func() {
		if err := tbl.Close(); err != nil {
			log.Printf("blockbench[%s]: close: %v", session, err)
		}
	}()

	var mu sync.Mutex
	c := cron.New()
	if _, err := c.AddFunc(checkpointSchedule, func() {
		mu.Lock()
		defer mu.Unlock()
		start := time.Now()
		if err := tbl.Checkpoint(); err != nil {
			log.Printf("blockbench[%s]: checkpoint failed: %v", session, err)
			return
		}
		log.Printf("blockbench[%s]: checkpoint completed in %s", session, time.Since(start))
	}); err != nil {
		return fmt.Errorf("schedule checkpoint: %w", err)
	}
	c.Start()
	defer c.Stop()

	start := time.Now()
	var totalBytes uint64
	for i := 0; i < records; i++ {
		payload := []byte(fmt.Sprintf("blockbench-record-%08d-%s", i, session))
		mu.Lock()
		_, err := tbl.Insert(payload)
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
		totalBytes += uint64(len(payload))
		if (i+1)%1000 == 0 {
			log.Printf("blockbench[%s]: inserted %s/%s records (%s written)",
				session, humanize.Comma(int64(i+1)), humanize.Comma(int64(records)), humanize.Bytes(totalBytes))
		}
	}
	log.Printf("blockbench[%s]: insert phase done in %s", session, time.Since(start))

	scanStart := time.Now()
	var seen int
	mu.Lock()
	err = tbl.Scan(func(rid table.RID, data []byte) error {
		seen++
		return nil
	})
	mu.Unlock()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	log.Printf("blockbench[%s]: scan phase visited %s records in %s", session, humanize.Comma(int64(seen)), time.Since(scanStart))

	mu.Lock()
	err = tbl.Checkpoint()
	mu.Unlock()
	if err != nil {
		return fmt.Errorf("final checkpoint: %w", err)
	}
	log.Printf("blockbench[%s]: run complete", session)
	return nil
}
