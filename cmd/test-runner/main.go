// Package main - test_runner.go
// Executable to run the station scenario suite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/MRamiBalles/StationAtmos/server/test"
)

func main() {
	breachTicks := flag.Int("breach-ticks", 3000, "tick budget for the hull breach scenario")
	conserveTicks := flag.Int("conserve-ticks", 200, "ticks for the conservation scenario")
	flag.Parse()

	fmt.Println("STATION ATMOS - SCENARIO SUITE")
	fmt.Println(strings.Repeat("=", 60))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	scenarios := []test.Scenario{
		test.WireSabotage(),
		test.Conservation(*conserveTicks),
		test.HullBreach(*breachTicks),
	}

	passed, failed := 0, 0
	for _, sc := range scenarios {
		fmt.Printf("\n>> %s...\n", sc.Name)
		r := sc.Run(ctx)
		status := "PASS"
		if r.Passed {
			passed++
		} else {
			failed++
			status = "FAIL"
		}
		fmt.Printf("   [%s] after %d ticks", status, r.Ticks)
		if r.Reason != "" {
			fmt.Printf(": %s", r.Reason)
		}
		fmt.Println()
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("   Passed: %d\n", passed)
	fmt.Printf("   Failed: %d\n", failed)

	if failed > 0 {
		fmt.Println("\nStation atmospherics need attention")
		os.Exit(1)
	}
	fmt.Println("\nStation atmospherics nominal")
}
