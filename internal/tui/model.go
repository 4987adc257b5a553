// Package tui is the terminal front end of a reconciler.Client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"todo-sync/internal/localstore"
	"todo-sync/internal/models"
	"todo-sync/internal/reconciler"
	"todo-sync/internal/syncerr"
)

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeEditText
	modeEditDescription
)

type (
	snapshotMsg models.Snapshot
	statusMsg   reconciler.Status
	errMsg      struct{ err error }
)

// Model renders the list and turns key presses into client calls.
type Model struct {
	client reconciler.Client
	ctx    context.Context
	keys   keyMap
	help   help.Model
	input  textinput.Model

	active    []models.Todo
	completed []models.Todo
	cursor    int

	mode   mode
	target string
	status reconciler.Status
	notice string
}

func New(ctx context.Context, client reconciler.Client) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 500

	m := Model{
		client: client,
		ctx:    ctx,
		keys:   defaultKeys(),
		help:   help.New(),
		input:  ti,
		status: client.Status(),
	}
	m.setSnapshot(client.CurrentSnapshot())
	return m
}

func (m Model) Init() tea.Cmd { return nil }

func (m *Model) setSnapshot(s models.Snapshot) {
	m.active, m.completed = localstore.Partition(s)
	if n := len(m.active) + len(m.completed); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) selected() (models.Todo, bool) {
	switch {
	case m.cursor < len(m.active):
		return m.active[m.cursor], true
	case m.cursor-len(m.active) < len(m.completed):
		return m.completed[m.cursor-len(m.active)], true
	}
	return models.Todo{}, false
}

// call runs fn off the event loop; only failures come back as messages.
func (m Model) call(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := fn(ctx); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil
	case snapshotMsg:
		m.setSnapshot(models.Snapshot(msg))
		return m, nil
	case statusMsg:
		m.status = reconciler.Status(msg)
		return m, nil
	case errMsg:
		if syncerr.IsValidation(msg.err) {
			m.notice = msg.err.Error()
		} else {
			m.status = m.client.Status()
			if m.status.LastError == nil {
				m.notice = msg.err.Error()
			}
		}
		return m, nil
	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}
	if m.mode != modeBrowse {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(m.active) + len(m.completed)
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < n-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Toggle):
		if t, ok := m.selected(); ok {
			return m, m.call(func(ctx context.Context) error { return m.client.Toggle(ctx, t.ID) })
		}
	case key.Matches(msg, m.keys.Delete):
		if t, ok := m.selected(); ok {
			return m, m.call(func(ctx context.Context) error { return m.client.DeleteTodo(ctx, t.ID) })
		}
	case key.Matches(msg, m.keys.Add):
		return m.startInput(modeAdd, "", "", "What needs doing?")
	case key.Matches(msg, m.keys.Edit):
		if t, ok := m.selected(); ok {
			return m.startInput(modeEditText, t.ID, t.Text, "")
		}
	case key.Matches(msg, m.keys.Describe):
		if t, ok := m.selected(); ok {
			desc := ""
			if t.Description != nil {
				desc = *t.Description
			}
			return m.startInput(modeEditDescription, t.ID, desc, "Add a note (empty clears it)")
		}
	case key.Matches(msg, m.keys.Dismiss):
		m.notice = ""
		m.client.DismissError()
		m.status = m.client.Status()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) startInput(md mode, target, value, placeholder string) (tea.Model, tea.Cmd) {
	m.mode = md
	m.target = target
	m.notice = ""
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		value, target, md := m.input.Value(), m.target, m.mode
		m = m.stopInput()
		switch md {
		case modeAdd:
			return m, m.call(func(ctx context.Context) error {
				_, err := m.client.AddTodo(ctx, value, nil)
				return err
			})
		case modeEditText:
			return m, m.call(func(ctx context.Context) error { return m.client.EditText(ctx, target, value) })
		case modeEditDescription:
			return m, m.call(func(ctx context.Context) error { return m.client.EditDescription(ctx, target, value) })
		}
		return m, nil
	case key.Matches(msg, m.keys.Cancel):
		return m.stopInput(), nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) stopInput() Model {
	m.mode = modeBrowse
	m.target = ""
	m.input.SetValue("")
	m.input.Blur()
	return m
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Todos") + "  " + m.statusLine() + "\n")
	if err := m.status.LastError; err != nil {
		b.WriteString(errorStyle.Render("✖ "+describe(err)) + mutedStyle.Render("  esc to dismiss") + "\n")
	}
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n")

	if len(m.active)+len(m.completed) == 0 {
		b.WriteString(mutedStyle.Render("Nothing to do. Press a to add one.") + "\n")
	}
	m.section(&b, "Active", m.active, 0)
	m.section(&b, "Completed", m.completed, len(m.active))

	if m.mode != modeBrowse {
		title := "New todo"
		switch m.mode {
		case modeEditText:
			title = "Edit todo"
		case modeEditDescription:
			title = "Edit note"
		}
		b.WriteString(inputStyle.Render(title+"\n"+m.input.View()) + "\n")
	}
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return panelStyle.Render(b.String())
}

func (m Model) statusLine() string {
	if !m.status.Connected {
		return offlineStyle.Render("○ offline")
	}
	line := onlineStyle.Render("● online")
	if len(m.status.Participants) > 0 {
		line += mutedStyle.Render(" · " + strings.Join(m.status.Participants, ", "))
	}
	return line
}

func (m Model) section(b *strings.Builder, title string, list []models.Todo, offset int) {
	if len(list) == 0 {
		return
	}
	b.WriteString(sectionStyle.Render(fmt.Sprintf("%s (%d)", title, len(list))) + "\n")
	for i, t := range list {
		box, text := boxUnchecked, t.Text
		if t.Completed {
			box, text = boxChecked, doneStyle.Render(t.Text)
		}
		prefix := "  "
		if offset+i == m.cursor {
			prefix = selectedStyle.Render(">") + " "
		}
		b.WriteString(prefix + box + " " + text + mutedStyle.Render(" · "+t.Author()) + "\n")
		if t.HasDescription() {
			b.WriteString("    " + mutedStyle.Render(*t.Description) + "\n")
		}
	}
	b.WriteString("\n")
}

// describe turns the error taxonomy into a short banner.
func describe(err error) string {
	var pe *syncerr.PersistenceError
	switch {
	case errors.As(err, &pe):
		return "The server rejected the change; the list was reloaded. " + pe.Err.Error()
	case syncerr.IsTransport(err):
		return "Connection problem: " + err.Error()
	}
	return err.Error()
}
