// Standalone mock beam server for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pulsecalc serve -c example/config.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"time"
)

func main() {
	fmt.Println("Mock beam server starting on :9999")
	fmt.Println("GET /beam returns a decaying current that is topped up every minute")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	start := time.Now()
	http.HandleFunc("/beam", func(w http.ResponseWriter, r *http.Request) {
		sinceTopUp := math.Mod(time.Since(start).Seconds(), 60)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"current": 300*math.Exp(-sinceTopUp/600) + rand.Float64()*0.5,
				"energy":  3.0,
			},
		})
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
