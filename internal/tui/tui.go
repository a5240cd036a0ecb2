// Package tui renders a running batch in the terminal.
//
// The full-screen view is a Bubble Tea program driven by the batch's
// event feed; Printer is the plain line-oriented fallback for quiet
// mode and non-terminal output.
package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sonnixhq/songfetch/internal/progress"
)

// Run displays the batch until it ends or the user closes the view.
// onCancel is invoked on the first stop request; the display stays up
// so in-flight songs can finish on screen. A second stop request
// closes the view without waiting.
func Run(ctx context.Context, state *progress.State, onCancel func()) error {
	// Subscribe before snapshotting so no event falls between the two.
	events, unsubscribe := state.Subscribe()
	defer unsubscribe()

	program := tea.NewProgram(newModel(state.Snapshot(), onCancel),
		tea.WithOutput(os.Stderr),
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	// The feed closes when the batch reaches a terminal status; Send on
	// a finished program is a no-op, so the bridge never blocks exit.
	go func() {
		for evt := range events {
			program.Send(eventMsg{evt})
		}
		program.Send(doneMsg{})
	}()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			program.Send(stopMsg{})
		case <-finished:
		}
	}()

	_, err := program.Run()
	return err
}
