package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/SensorLens"
)

func main() {
	flow, err := sensorlens.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := sensorlens.NewChannelSink("fanout", 4)
	defer closeBatches()

	go fanoutWorker("viewer", batches)

	rt, err := flow.Export(sensorlens.ExportSink(sink))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	// refresh every 30s so the viewer keeps receiving batches
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			if err := rt.RequestBulkData(); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan *sensorlens.Batch) {
	for batch := range batches {
		fmt.Printf("[%s] batch %s with %d records at %s\n", name, batch.ID, batch.Len(), time.Now().Format(time.RFC3339))
	}
}
