package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"prex/internal/driver"
	"prex/internal/replay"
	"prex/internal/schema"
	"prex/internal/ui"
)

type analyzeOutcome struct {
	result *driver.ModuleResult
	err    error
}

// runAnalyzeWithUI runs the module analysis behind a progress TUI fed by
// driver events. The analysis itself runs on its own goroutine; the UI
// quits when the event channel closes.
func runAnalyzeWithUI(ctx context.Context, title string, p *schema.Profile, exec *replay.Executor, entries []string, opts driver.Options) (*driver.ModuleResult, error) {
	events := make(chan driver.Event, 256)
	outcomeCh := make(chan analyzeOutcome, 1)

	go func() {
		optsCopy := opts
		optsCopy.Sink = driver.ChannelSink{Ch: events}
		res, err := driver.AnalyzeModule(ctx, p.Types, p.Module, exec, entries, optsCopy)
		outcomeCh <- analyzeOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, entries, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
