package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pulsecalc"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockBeamServer(":9999")
	time.Sleep(100 * time.Millisecond)

	const beam = "http://localhost:9999/beam"

	board, err := pulsecalc.New(
		// beam power in MW from two fields of the same endpoint
		pulsecalc.WithChannel("calc://power?i="+beam+"#data.current&en="+beam+"#data.energy&expr=i*en/1000"),
		// corrected current, recomputed only when the current changes
		pulsecalc.WithChannel("calc://corrected?i="+beam+"#data.current&g=loc://gain&expr=i*g&update=[i]"),
		// a calculation over another calculation
		pulsecalc.WithChannel("calc://power_kw?p=calc://power&expr=round(p*1000)"),
		// array input
		pulsecalc.WithChannel("calc://profile_peak?w="+beam+"#data.profile&expr=max(w)"),
		pulsecalc.WithChannel("calc://mode?m="+beam+"#mode&expr=m"),
		pulsecalc.WithLocal("gain", 1.0),
		pulsecalc.WithPollInterval(time.Second),
		pulsecalc.WithTitle("PulseCalc Demo"),
		pulsecalc.WithPort(8080),
	)
	if err != nil {
		slog.Error("failed to create board", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  PulseCalc Demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println()
	fmt.Println("  Change the gain used by 'corrected':")
	fmt.Println(`    curl -X POST -d '{"value": 1.05}' http://localhost:8080/api/local/gain`)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := board.Start(ctx); err != nil {
		slog.Error("board error", "error", err)
		os.Exit(1)
	}
}
