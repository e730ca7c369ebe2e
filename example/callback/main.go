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

	callback := func(batch *sensorlens.Batch) error {
		for _, r := range batch.Records {
			fmt.Printf("%s device=%s t=%.3f alt=%.3f accel=%.3f color=%+v\n",
				r.Timestamp.Format(time.RFC3339),
				r.Raw.DeviceID,
				r.TimestampSecondsN,
				r.AltitudeN,
				r.AccelMagN,
				r.AccelColorVecN,
			)
		}
		return nil
	}

	if err := flow.Run(ctx, sensorlens.ExportCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
