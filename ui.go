package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/ayxsth/cloudymate/rag"
)

// showSuccess displays a success message
func showSuccess(message string) {
	green := color.New(color.FgGreen, color.Bold)
	green.Printf("✓ %s\n", message)
}

// showError displays an error message
func showError(message string) {
	red := color.New(color.FgRed, color.Bold)
	red.Printf("✗ %s\n", message)
}

// showInfo displays an info message
func showInfo(message string) {
	blue := color.New(color.FgBlue)
	blue.Println(message)
}

func printAnswer(a rag.Answer) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println("\nCloudyMate:")
	if a.Blocked {
		color.New(color.FgYellow).Println(a.Answer)
		fmt.Println()
		return
	}
	fmt.Println(a.Answer)

	if len(a.Sources) == 0 {
		fmt.Println()
		return
	}
	faint := color.New(color.Faint)
	fmt.Println()
	cyan.Printf("Sources (%d):\n", a.NumSources)
	for i, s := range a.Sources {
		fmt.Printf("  %d. %s, chunk %d (score %.2f)\n", i+1, s.Source, s.ChunkIndex, s.Score)
		faint.Printf("     %s\n", strings.ReplaceAll(s.Excerpt, "\n", " "))
	}
	fmt.Println()
}
