package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/veridrive/sigproof"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
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
		log.Fatalf("sigproof %s: %v", cmd, err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `sigproof - signal-to-detection timing correlation engine

Usage:
  sigproof run      [-config path]        Run one validation session to completion
  sigproof validate [-config path]        Validate a configuration file
  sigproof stats    [-url u] [-interval d] Stream correlation metrics
  sigproof help                           Show this help`)
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sigproof.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := sigproof.NewRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verdict, err := rt.Run(ctx)
	if err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		return err
	}

	printVerdict(verdict)
	if verdict.Result == sigproof.OutcomeFail {
		os.Exit(2)
	}
	return nil
}

func printVerdict(v *sigproof.TestVerdict) {
	fmt.Printf("session %s: %s (%d/6 criteria met)\n", v.SessionID, v.Result, v.CriteriaMet)
	fmt.Printf("  precision            %.4f\n", v.Metrics.Precision)
	fmt.Printf("  recall               %.4f\n", v.Metrics.Recall)
	fmt.Printf("  f1_score             %.4f\n", v.Metrics.F1Score)
	fmt.Printf("  avg_latency_ms       %.3f\n", v.Metrics.AvgLatencyMs)
	fmt.Printf("  false_positive_rate  %.4f\n", v.Metrics.FalsePositiveRate)
	fmt.Printf("  avg_confidence       %.4f\n", v.Metrics.AvgConfidence)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := sigproof.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
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
		"sigproof_signal_events_total":    0,
		"sigproof_matches_total":          0,
		"sigproof_buffered_signal_events": 0,
		"sigproof_result_journal_bytes":   0,
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

	fmt.Printf("[%s] events=%.0f matches=%.0f buffered=%.0f journal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["sigproof_signal_events_total"],
		targets["sigproof_matches_total"],
		targets["sigproof_buffered_signal_events"],
		targets["sigproof_result_journal_bytes"])
	return nil
}
