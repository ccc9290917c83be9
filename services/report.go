package services

import (
	"fmt"
	"strings"
	"time"

	"divar-ingest/models"
)

const timeRound = 100 * time.Millisecond

// PrintSummary renders the run completion report: what discovery found and
// how every item ended up.
func PrintSummary(r *models.RunSummary) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  🏠 INGESTION RUN SUMMARY\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Tokens\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Discovered          : \033[1m%d\033[0m\n", r.Discovered)
	fmt.Printf("  Succeeded           : \033[1;32m%d\033[0m\n", r.Succeeded)
	fmt.Printf("  Skipped (not found) : \033[1;33m%d\033[0m\n", r.SkippedNotFound)
	fmt.Printf("  Skipped (malformed) : \033[1;33m%d\033[0m\n", r.SkippedMalformed)
	fmt.Printf("  Failed              : \033[1;31m%d\033[0m\n", r.Failed)
	if r.Cancelled > 0 {
		fmt.Printf("  Cancelled           : \033[1;33m%d\033[0m\n", r.Cancelled)
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Side Effects\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Images re-hosted    : \033[1m%d\033[0m\n", r.ImagesOffloaded)
	fmt.Printf("  Search docs indexed : \033[1m%d\033[0m\n", r.Indexed)
	fmt.Println()

	fmt.Printf("  Elapsed: %s\n", r.Elapsed.Round(timeRound))
	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}
