// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptDocStyle      = lipgloss.NewStyle().Margin(1, 2)
	promptTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptSelectedStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("170"))
	promptItemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	promptHelpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// textPromptModel is the bubbletea model for free-text and confirm
// prompts.
type textPromptModel struct {
	Message      string
	DefaultValue string
	Confirm      bool
	Input        textinput.Model
	Cancelled    bool
	done         bool
}

func newTextPromptModel(message, defaultValue string, confirm bool) *textPromptModel {
	input := textinput.New()
	input.Width = 60
	if confirm {
		input.Placeholder = "y/n"
	} else if defaultValue != "" {
		input.Placeholder = defaultValue
	} else {
		input.Placeholder = "Enter value..."
	}
	input.Focus()

	return &textPromptModel{
		Message:      message,
		DefaultValue: defaultValue,
		Confirm:      confirm,
		Input:        input,
	}
}

// Init implements tea.Model
func (*textPromptModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model
func (m *textPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "ctrl+c", "esc":
			m.Cancelled = true
			return m, tea.Quit
		case "enter":
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m *textPromptModel) View() string {
	if m.done || m.Cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(promptTitleStyle.Render(m.Message))
	b.WriteString("\n\n")
	b.WriteString(m.Input.View())
	b.WriteString("\n\n")
	b.WriteString(promptHelpStyle.Render("enter to submit, esc to cancel"))
	return promptDocStyle.Render(b.String())
}

// Value returns the submitted answer.
func (m *textPromptModel) Value() string {
	return strings.TrimSpace(m.Input.Value())
}

// selectPromptModel is the bubbletea model for select prompts.
type selectPromptModel struct {
	Message   string
	Options   []string
	Cursor    int
	Cancelled bool
	done      bool
}

func newSelectPromptModel(message string, options []string) *selectPromptModel {
	return &selectPromptModel{
		Message: message,
		Options: options,
	}
}

// Init implements tea.Model
func (*selectPromptModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m *selectPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "ctrl+c", "esc", "q":
		m.Cancelled = true
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(m.Options)-1 {
			m.Cursor++
		}
	case "enter":
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model
func (m *selectPromptModel) View() string {
	if m.done || m.Cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(promptTitleStyle.Render(m.Message))
	b.WriteString("\n\n")
	for i, opt := range m.Options {
		row := fmt.Sprintf("  %s", opt)
		if i == m.Cursor {
			b.WriteString(promptSelectedStyle.Render("> " + opt))
		} else {
			b.WriteString(promptItemStyle.Render(row))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(promptHelpStyle.Render("Use ↑/↓ (or j/k) to move, 'enter' to select, 'q' to quit."))
	return promptDocStyle.Render(b.String())
}

// Value returns the selected option.
func (m *selectPromptModel) Value() string {
	if len(m.Options) == 0 {
		return ""
	}
	return m.Options[m.Cursor]
}
