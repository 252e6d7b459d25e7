package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/controldesk/controldesk/internal/audit"
	"github.com/controldesk/controldesk/internal/control"
)

func main() {
	fmt.Println("=== SCALING BENCHMARK (board projections) ===")
	fmt.Println()
	benchControls([]int{1000, 10000, 50000, 100000})

	fmt.Println("=== SCALING BENCHMARK (activity journal) ===")
	fmt.Println()
	benchJournal([]int{1000, 10000, 50000, 100000})
}

func synthetic(n int) []control.Control {
	areas := []string{"Network Security", "Access Control", "Change Management", "Incident Response", "Cloud Security"}
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]control.Control, n)
	for i := range out {
		t := created.Add(time.Duration(i) * time.Hour)
		out[i] = control.Control{
			ID:          fmt.Sprintf("BENCH-%d", i+1),
			Description: fmt.Sprintf("Synthetic control %d for firewall and access review", i+1),
			Area:        areas[i%len(areas)],
			Type:        control.Types[i%len(control.Types)],
			Risk:        control.Risks[i%len(control.Risks)],
			Status:      control.Statuses[i%len(control.Statuses)],
			Progress:    i % 101,
			Framework:   []string{"SOC 2", "ISO 27001"}[i%2],
			CreatedAt:   &t,
		}
	}
	return out
}

func benchControls(scales []int) {
	for _, n := range scales {
		controls := synthetic(n)
		high := control.FilterState{Risk: control.RiskHigh, Status: control.StatusInProgress}
		search := control.FilterState{Search: "ACCESS REVIEW"}

		type benchmark struct {
			name string
			fn   func()
		}
		benchmarks := []benchmark{
			{"Filter risk+status", func() { _ = control.Filter(controls, high) }},
			{"Filter search", func() { _ = control.Filter(controls, search) }},
			{"Summarize", func() { _ = control.Summarize(controls) }},
			{"Project rows", func() { _ = control.Project(controls) }},
			{"Analytics", func() { _ = control.Analyze(controls) }},
			{"Gaps (10)", func() { _ = control.Gaps(controls, 0) }},
			{"Clone all", func() { _ = control.CloneAll(controls) }},
		}

		fmt.Printf("--- %dk controls ---\n", n/1000)
		iters := 50
		if n >= 50000 {
			iters = 10
		}
		for _, b := range benchmarks {
			fmt.Printf("  %-22s %7.2f ms\n", b.name, timeIt(iters, b.fn))
		}
		fmt.Println()
	}
}

func benchJournal(scales []int) {
	dir, _ := os.MkdirTemp("", "controldesk-bench-*")
	defer func() { _ = os.RemoveAll(dir) }()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	dbPath := filepath.Join(dir, "bench.db")
	store, err := audit.NewStore(dbPath, logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = store.Close() }()

	types := []string{"status_advanced", "status_advanced", "controls_loaded", "document_generated", "persist_failed"}
	base := time.Now().Add(-72 * time.Hour).UTC()

	written := 0
	for _, target := range scales {
		toWrite := target - written
		if toWrite <= 0 {
			continue
		}

		start := time.Now()
		for j := 0; j < toWrite; j++ {
			idx := written + j
			typ := types[idx%len(types)]
			store.Log(audit.Entry{
				ID:         fmt.Sprintf("e-%07d", idx),
				Timestamp:  base.Add(time.Duration(idx) * time.Second).Format(audit.TimeLayout),
				Type:       typ,
				ControlID:  fmt.Sprintf("BENCH-%d", idx%500),
				FromStatus: string(control.StatusNotStarted),
				ToStatus:   string(control.StatusInProgress),
				OK:         typ != "persist_failed",
			})
			// Log drops entries when the buffer is full; drain periodically.
			if j%200 == 199 {
				store.Flush()
			}
		}
		store.Flush()
		written = target
		fillTime := time.Since(start)
		insertRate := float64(toWrite) / fillTime.Seconds()

		type benchmark struct {
			name string
			fn   func()
		}
		since := base.Add(time.Duration(written-1000) * time.Second).Format(audit.TimeLayout)
		benchmarks := []benchmark{
			{"Recent 50", func() { _, _ = store.Query(audit.QueryOpts{Limit: 50}) }},
			{"By control", func() { _, _ = store.Query(audit.QueryOpts{ControlID: "BENCH-42", Limit: 50}) }},
			{"Since (last 1k)", func() { _, _ = store.Query(audit.QueryOpts{Since: since, Limit: 1000}) }},
			{"Search LIKE", func() { _, _ = store.Query(audit.QueryOpts{Search: "persist", Limit: 50}) }},
			{"Stats (all rows)", func() { _, _ = store.QueryStats() }},
			{"Control activity", func() { _, _ = store.QueryControlActivity(20) }},
		}

		fi, _ := os.Stat(dbPath)
		wal, _ := os.Stat(dbPath + "-wal")
		dbMB := float64(0)
		if fi != nil {
			dbMB = float64(fi.Size()) / (1024 * 1024)
		}
		if wal != nil {
			dbMB += float64(wal.Size()) / (1024 * 1024)
		}

		fmt.Printf("--- %dk entries | %.0f MB | %.0f ins/sec ---\n", written/1000, dbMB, insertRate)
		iters := 20
		if written >= 50000 {
			iters = 5
		}
		for _, b := range benchmarks {
			fmt.Printf("  %-22s %7.1f ms\n", b.name, timeIt(iters, b.fn))
		}
		fmt.Println()
	}
}

func timeIt(iters int, fn func()) float64 {
	start := time.Now()
	for range iters {
		fn()
	}
	return float64(time.Since(start).Microseconds()) / float64(iters) / 1000.0
}
