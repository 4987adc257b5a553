package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"todo-sync/internal/models"
	"todo-sync/internal/reconciler"
)

// Run shows the list until the user quits or ctx is done. client must
// already be started.
func Run(ctx context.Context, client reconciler.Client) error {
	p := tea.NewProgram(New(ctx, client), tea.WithAltScreen(), tea.WithContext(ctx))

	snapshots := client.Subscribe(func(s models.Snapshot) { p.Send(snapshotMsg(s)) })
	defer snapshots.Close()
	statuses := client.OnStatus(func(s reconciler.Status) { p.Send(statusMsg(s)) })
	defer statuses.Close()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
