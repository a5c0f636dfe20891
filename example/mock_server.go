package main

import (
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// beamReading is the JSON body served at /beam.
type beamReading struct {
	Data struct {
		Current float64   `json:"current"`
		Energy  float64   `json:"energy"`
		Profile []float64 `json:"profile"`
	} `json:"data"`
	Mode string `json:"mode"`
}

// newMockBeamHandler serves a slowly decaying beam current that is topped up
// every minute, with a little noise on every reading.
func newMockBeamHandler() http.Handler {
	start := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/beam", func(w http.ResponseWriter, r *http.Request) {
		elapsed := time.Since(start).Seconds()
		sinceTopUp := math.Mod(elapsed, 60)

		var reading beamReading
		reading.Data.Current = 300*math.Exp(-sinceTopUp/600) + rand.Float64()*0.5
		reading.Data.Energy = 3.0
		reading.Data.Profile = make([]float64, 8)
		for i := range reading.Data.Profile {
			x := float64(i) - 3.5
			reading.Data.Profile[i] = math.Exp(-x*x/4) + rand.Float64()*0.05
		}
		reading.Mode = "decay"
		if sinceTopUp < 5 {
			reading.Mode = "top-up"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reading); err != nil {
			slog.Error("failed to encode beam reading", "error", err)
		}
	})
	return mux
}

// StartMockBeamServer runs the mock beam endpoint on addr.
// Call this in a goroutine before starting the board.
func StartMockBeamServer(addr string) {
	if err := http.ListenAndServe(addr, newMockBeamHandler()); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
