// Package main - test-runner
// Executable for the headless soak scenario: full seeded sessions against
// the real engine, invariants checked every tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/stallrush/server/test"
)

func main() {
	seed := flag.Int64("seed", 1, "RNG seed; the same seed reproduces the same run")
	sessions := flag.Int("sessions", 10, "number of sessions to play to game over")
	flag.Parse()

	fmt.Println("🚽 STALL RUSH - SOAK TEST SUITE")
	fmt.Println("================================================")
	fmt.Printf("Seed: %d  Sessions: %d\n", *seed, *sessions)

	soak := test.NewSoakTest(*seed, *sessions)
	soak.Run(context.Background())

	passed := 0
	failed := 0
	for _, r := range soak.Results() {
		status := "✅"
		if !r.Passed {
			status = "❌"
			failed++
		} else {
			passed++
		}
		fmt.Printf("%s %-12s score=%-4d difficulty=%-2d ticks=%-6d %s\n",
			status, r.ScenarioName, r.Score, r.Difficulty, r.Ticks, r.Reason)
	}

	fmt.Println("================================================")
	fmt.Printf("Passed: %d  Failed: %d\n", passed, failed)

	if failed > 0 {
		os.Exit(1)
	}
}
