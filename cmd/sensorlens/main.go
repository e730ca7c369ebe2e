package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ghalamif/SensorLens"
	"github.com/ghalamif/SensorLens/internal/adapters/chart"
)

const defaultConfig = "./data/config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := loadDotEnv(); err != nil {
		log.Fatalf("sensorlens: load .env: %v", err)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "check":
		err = checkCommand(os.Args[2:])
	case "fetch":
		err = fetchCommand(os.Args[2:])
	case "plot":
		err = plotCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("sensorlens %s: %v", cmd, err)
	}
}

// loadDotEnv reads ./.env if present so credentials can stay out of the YAML.
func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "Path to configuration file")
	refresh := fs.Duration("refresh", 0, "Re-request bulk data at this interval (0 fetches once)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := sensorlens.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := flow.Export()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.RequestBulkData(); err != nil {
		return err
	}
	if *refresh > 0 {
		go func() {
			ticker := time.NewTicker(*refresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := rt.RequestBulkData(); err != nil {
						return
					}
				}
			}
		}()
	}
	return rt.Run(ctx)
}

func checkCommand(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "Path to configuration file")
	timeout := fs.Duration("timeout", 30*time.Second, "Give up waiting after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := newRuntime(*cfgPath)
	if err != nil {
		return err
	}
	defer shutdown(rt)

	results := make(chan sensorlens.ConnectivityResult, 1)
	if _, err := rt.OnConnectivityResult(func(e sensorlens.Event) {
		select {
		case results <- e.Connectivity:
		default:
		}
	}); err != nil {
		return err
	}
	if err := rt.CheckConnectivity(sensorlens.Credentials{}); err != nil {
		return err
	}

	select {
	case res := <-results:
		for _, line := range res.Log {
			fmt.Println(line)
		}
		if !res.Passed {
			return fmt.Errorf("connectivity check failed: %s", res.Message)
		}
		fmt.Println("connectivity check passed")
		return nil
	case <-time.After(*timeout):
		return fmt.Errorf("no connectivity result after %s", *timeout)
	}
}

func fetchCommand(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "Path to configuration file")
	timeout := fs.Duration("timeout", 60*time.Second, "Give up waiting after this long")
	asJSON := fs.Bool("json", false, "Print the normalized batch as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := newRuntime(*cfgPath)
	if err != nil {
		return err
	}
	defer shutdown(rt)

	batch, err := fetchBatch(rt, *timeout)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	}
	fmt.Printf("batch %s: %d records\n", batch.ID, batch.Len())
	for _, r := range batch.Records {
		fmt.Printf("%s device=%s alt=%.2f (%.3f) lat=%.6f lon=%.6f accel=%.3f (%.3f)\n",
			r.Timestamp.Format(time.RFC3339),
			r.Raw.DeviceID,
			r.Altitude, r.AltitudeN,
			r.Latitude, r.Longitude,
			r.AccelMag, r.AccelMagN,
		)
	}
	return nil
}

func plotCommand(args []string) error {
	fs := flag.NewFlagSet("plot", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "Path to configuration file")
	out := fs.String("out", "batch.png", "Output PNG path")
	width := fs.Int("width", 0, "Image width in pixels")
	height := fs.Int("height", 0, "Image height in pixels")
	timeout := fs.Duration("timeout", 60*time.Second, "Give up waiting after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := newRuntime(*cfgPath)
	if err != nil {
		return err
	}
	defer shutdown(rt)

	batch, err := fetchBatch(rt, *timeout)
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := chart.RenderPNG(f, batch, chart.Options{Width: *width, Height: *height, Title: "batch " + batch.ID}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %d records to %s\n", batch.Len(), *out)
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := sensorlens.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func newRuntime(cfgPath string) (*sensorlens.Runtime, error) {
	cfg, err := sensorlens.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rt, err := sensorlens.NewRuntime(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := rt.StartConfiguredSession(); err != nil {
		shutdown(rt)
		return nil, err
	}
	return rt, nil
}

func shutdown(rt *sensorlens.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// fetchBatch issues one BulkData request and waits for its outcome. A failed
// request publishes no event, so the last outcome is polled as well.
func fetchBatch(rt *sensorlens.Runtime, timeout time.Duration) (*sensorlens.Batch, error) {
	ready := make(chan struct{}, 1)
	sub, err := rt.OnBatchAvailable(func(sensorlens.Event) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := rt.RequestBulkData(); err != nil {
		return nil, err
	}

	deadline := time.After(timeout)
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ready:
			return rt.NormalizedBatch()
		case <-poll.C:
			if out, found := rt.LastOutcome(sensorlens.BulkData); found && !out.OK {
				return nil, fmt.Errorf("bulk data request failed (%s): %s", out.Class, out.Diagnostic)
			}
		case <-deadline:
			return nil, fmt.Errorf("no bulk data after %s", timeout)
		}
	}
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"sensorlens_batch_records":          0,
		"sensorlens_parse_defects_total":    0,
		"sensorlens_records_exported_total": 0,
		"sensorlens_event_queue_length":     0,
		"sensorlens_journal_size_bytes":     0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] records=%.0f defects=%.0f exported=%.0f queue=%.0f journal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["sensorlens_batch_records"],
		targets["sensorlens_parse_defects_total"],
		targets["sensorlens_records_exported_total"],
		targets["sensorlens_event_queue_length"],
		targets["sensorlens_journal_size_bytes"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`SensorLens CLI

Usage:
  sensorlens <command> [flags]

Commands:
  run        Start the runtime: fetch, export, serve metrics and the HTTP API
  check      Run the connectivity check and print the connection log
  fetch      Request bulk data once and print the normalized batch
  plot       Request bulk data once and render it to a PNG
  validate   Load and validate a config file without starting the runtime
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  sensorlens run -config ./data/config.yaml -refresh 30s
  sensorlens check -config ./data/config.yaml
  sensorlens fetch -config ./data/config.yaml -json
  sensorlens plot -config ./data/config.yaml -out batch.png
  sensorlens stats -url http://localhost:9100/metrics -interval 1s
`)
}
