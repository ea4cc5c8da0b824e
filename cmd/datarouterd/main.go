package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	datarouter "github.com/eclipse-score/datarouter-go"
	"github.com/eclipse-score/datarouter-go/internal/channel"
	"github.com/eclipse-score/datarouter-go/internal/logging"
)

func main() {
	var (
		ringSize   = flag.String("ring-size", "4M", "Size of one ring half (e.g. 4M, 512K)")
		traceDest  = flag.String("trace-dest", "127.0.0.1:9001", "UDP destination for the trace channel")
		sessionQuota = flag.Uint64("session-quota", 0, "Per-producer KB/s quota, 0 disables enforcement")
		verbose    = flag.Bool("v", false, "Verbose output")
		idleTick   = flag.Duration("idle-tick", 100*time.Millisecond, "Period at which every session is enqueued for a scheduler tick")
	)
	flag.Parse()

	halfBytes, err := parseSize(*ringSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -ring-size %q: %v\n", *ringSize, err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg := datarouter.Config{
		Logger:        logger,
		RingHalfBytes: int(halfBytes),
		Channels: []datarouter.ChannelSpec{
			{
				Name:    "trace",
				Mask:    channel.Mask(1),
				Dest:    *traceDest,
				Verbose: *verbose,
			},
		},
		DefaultMask:       channel.Mask(1),
		SessionQuotaKBps:  *sessionQuota,
		SchedulerIdleTick: *idleTick,
	}

	logger.Info("starting datarouter daemon", "ring_half_bytes", halfBytes, "trace_dest", *traceDest)

	daemon, err := datarouter.NewDaemon(cfg)
	if err != nil {
		logger.Error("failed to construct daemon", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- daemon.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case err := <-runDone:
		if err != nil {
			logger.Error("daemon exited", "error", err)
			os.Exit(1)
		}
		return
	}

	daemon.Stop()
	cancel()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		logger.Warn("shutdown timed out, forcing exit")
	}
}

// parseSize parses a size string like "4M", "512K", "1G".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
