package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"asyncexpr/internal/batch"
	"asyncexpr/internal/ui"
)

type batchOutcome struct {
	summary *batch.Summary
	err     error
}

// runBatchWithUI runs req while a progress model renders its events.
func runBatchWithUI(ctx context.Context, title string, req *batch.Request) (*batch.Summary, error) {
	if req == nil {
		return nil, fmt.Errorf("missing batch request")
	}
	events := make(chan batch.Event, 256)
	outcomeCh := make(chan batchOutcome, 1)

	names := make([]string, len(req.Samples))
	for i, s := range req.Samples {
		names[i] = s.Name
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		reqCopy := *req
		reqCopy.Progress = batch.ChannelSink{Ch: events}
		sum, err := batch.Run(ctx, &reqCopy)
		outcomeCh <- batchOutcome{summary: sum, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, names, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	if uiErr != nil {
		cancel()
	}
	// the model may quit early on ctrl+c; keep draining so Run can finish
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.summary, uiErr
	}
	return outcome.summary, outcome.err
}
