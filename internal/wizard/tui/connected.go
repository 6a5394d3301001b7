package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// updateConnected handles keyboard input on the success screen
func (m AppModel) updateConnected(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.ConnectedKeys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.ConnectedKeys.Restart):
		return m, m.run("restart", m.Wizard.Restart)
	}

	return m, nil
}

// buildConnectedContent builds the success screen content
func (m AppModel) buildConnectedContent() string {
	s := m.Snap.Session
	var b strings.Builder

	b.WriteString(RenderSuccess("WhatsApp connected!"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  Instance: %s\n", LabelStyle.Render(s.Name)))
	b.WriteString(fmt.Sprintf("  Number:   %s\n", LabelStyle.Render(s.Number)))
	b.WriteString("\n")
	b.WriteString("The instance is ready to send and receive messages.\n")

	return b.String()
}
