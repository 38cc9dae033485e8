package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"amrkg/predictor"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

const summaryLimit = 20

func printSummary(w io.Writer, kind predictor.FingerprintKind, model string, results []predictor.PredictionResult, dropped int) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("==== %s / %s predictions ====", kind, model)))
	limit := len(results)
	if limit > summaryLimit {
		limit = summaryLimit
	}
	for i := 0; i < limit; i++ {
		res := results[i]
		fmt.Fprintf(w, "%d. %s  %s %s\n",
			i+1,
			summarizeSMILES(res.Structure.Canonical),
			labelStyle.Render(string(res.Class)),
			infoStyle.Render(fmt.Sprintf("(p=%.3f)", res.Probability)))
	}
	if len(results) > limit {
		fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("... %d more", len(results)-limit)))
	}
	if len(results) == 0 {
		fmt.Fprintln(w, infoStyle.Render("no valid structures"))
	}
	if dropped > 0 {
		fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("%d input(s) could not be parsed and were dropped", dropped)))
	}
}

func summarizeSMILES(smiles string) string {
	text := strings.TrimSpace(smiles)
	runes := []rune(text)
	if len(runes) > 60 {
		return string(runes[:60]) + "…"
	}
	return text
}
