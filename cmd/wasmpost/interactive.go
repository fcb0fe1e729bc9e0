package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-post/binding"
	"github.com/wippyai/wasm-post/module"
	"github.com/wippyai/wasm-post/pass"
	"github.com/wippyai/wasm-post/wasm"
)

type editorState int

const (
	stateSelect editorState = iota
	stateEdit
	stateMessage
)

// editorModel edits the bindings of one decoded module. Only the binding of
// the selected entity ever changes; passes and saving go through the same
// pipeline and encoder as the process command.
type editorModel struct {
	err      error
	ctx      *module.Context
	pipeline pass.Pipeline
	log      *zap.Logger
	styles   styles
	input    textinput.Model
	filename string
	output   string
	message  string
	rows     []entityRow
	selected int
	state    editorState
	dirty    bool
}

func newEditorModel(a *app, filename, output string, ctx *module.Context) (*editorModel, error) {
	p, err := pass.NewRegistry().Pipeline(a.cfg.Passes.Run...)
	if err != nil {
		return nil, err
	}
	return &editorModel{
		ctx:      ctx,
		pipeline: p,
		log:      a.log,
		styles:   newStyles(a.renderer),
		filename: filename,
		output:   output,
		rows:     entityRows(ctx),
		state:    stateSelect,
	}, nil
}

type savedMsg struct {
	err   error
	bytes int
}

func (m *editorModel) Init() tea.Cmd {
	return nil
}

func (m *editorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateEdit {
			return m.updateEdit(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(m.rows)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelect:
				if len(m.rows) > 0 {
					m.startEdit()
				}
			case stateMessage:
				m.clearMessage()
			}

		case "p":
			if m.state == stateSelect {
				m.runPipeline()
			}

		case "w":
			if m.state == stateSelect {
				return m, m.save
			}

		case "esc":
			if m.state == stateMessage {
				m.clearMessage()
			}
		}

	case savedMsg:
		m.state = stateMessage
		m.err = msg.err
		if msg.err == nil {
			m.dirty = false
			m.message = fmt.Sprintf("wrote %d bytes to %s", msg.bytes, m.output)
		}
	}
	return m, nil
}

func (m *editorModel) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.state = stateSelect
		m.input.Blur()
		return m, nil
	case "enter":
		b, err := binding.Parse(m.input.Value())
		if err != nil {
			m.state = stateMessage
			m.err = err
			return m, nil
		}
		ref := m.rows[m.selected].ref
		e, _ := m.ctx.Entity(ref)
		m.log.Debug("binding edited", zap.Stringer("entity", ref), zap.Stringer("before", e.Binding()), zap.Stringer("after", b))
		e.SetBinding(b)
		m.dirty = true
		m.state = stateSelect
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *editorModel) startEdit() {
	e, _ := m.ctx.Entity(m.rows[m.selected].ref)
	ti := textinput.New()
	ti.Prompt = m.rows[m.selected].ref.String() + ": "
	ti.Placeholder = `export "name" | import "module" "name" | unbound`
	ti.Width = 60
	ti.SetValue(e.Binding().String())
	ti.Focus()
	m.input = ti
	m.state = stateEdit
}

func (m *editorModel) runPipeline() {
	m.state = stateMessage
	if err := m.pipeline.Run(m.ctx); err != nil {
		m.err = err
		return
	}
	m.dirty = true
	m.message = "applied " + strings.Join(m.pipeline.Names(), ", ")
}

func (m *editorModel) save() tea.Msg {
	out, err := wasm.Encode(m.ctx)
	if err != nil {
		return savedMsg{err: err}
	}
	if err := writeAtomic(m.output, out); err != nil {
		return savedMsg{err: err}
	}
	return savedMsg{bytes: len(out)}
}

func (m *editorModel) clearMessage() {
	m.state = stateSelect
	m.message = ""
	m.err = nil
}

func (m *editorModel) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.title.Render("wasmpost"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	if m.dirty {
		b.WriteString(" *")
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelect:
		if len(m.rows) == 0 {
			b.WriteString(s.unbound.Render("(no entities)"))
			b.WriteString("\n")
		}
		for i, r := range m.rows {
			e, _ := m.ctx.Entity(r.ref)
			line := fmt.Sprintf("%-12s %-28s ", r.ref, r.desc)
			if i == m.selected {
				b.WriteString(s.selected.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString(s.binding(e.Binding()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(s.help.Render("↑/↓ select • enter edit binding • p run passes • w save • q quit"))

	case stateEdit:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(s.help.Render("enter apply • esc back"))

	case stateMessage:
		if m.err != nil {
			b.WriteString(s.failure.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(s.result.Render(m.message))
		}
		b.WriteString("\n\n")
		b.WriteString(s.help.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(a *app, filename, output string, ctx *module.Context) error {
	m, err := newEditorModel(a, filename, output, ctx)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
