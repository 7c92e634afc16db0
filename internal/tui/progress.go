package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"

	"ruuvitool/internal/history"
)

// ProgressState tracks an ongoing chunk transfer.
type ProgressState struct {
	bar      progress.Model
	received int
	total    int
	percent  float64
	active   bool
}

// NewProgressState creates a new progress tracking state.
func NewProgressState() ProgressState {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
	)
	return ProgressState{
		bar: p,
	}
}

// Start begins tracking a new transfer.
func (p *ProgressState) Start() {
	p.active = true
	p.received = 0
	p.total = 0
	p.percent = 0
}

// Set records the latest transfer progress.
func (p *ProgressState) Set(prog history.Progress) {
	p.received = prog.Received
	p.total = prog.Total
	p.percent = prog.Percent
}

// Complete marks the transfer as finished.
func (p *ProgressState) Complete() {
	p.percent = 100
	p.active = false
}

// Cancel stops the progress without completing.
func (p *ProgressState) Cancel() {
	p.active = false
}

// IsActive returns whether a transfer is in progress.
func (p *ProgressState) IsActive() bool {
	return p.active
}

// View renders the progress bar.
func (p ProgressState) View() string {
	if !p.active {
		return ""
	}
	label := fmt.Sprintf("Receiving %d/%d chunks", p.received, p.total)
	if p.total == 0 {
		label = "Waiting for first chunk..."
	}
	return label + "\n" + p.bar.ViewAs(p.percent/100)
}
