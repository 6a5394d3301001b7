package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/evoconnect/internal/instance"
	"github.com/muurk/evoconnect/internal/urls"
)

// updateForm handles keyboard input on the form screen
func (m AppModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.FormKeys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.FormKeys.Next):
		m.focusInput(m.Focus + 1)
		return m, nil

	case key.Matches(msg, m.FormKeys.Prev):
		m.focusInput(m.Focus - 1)
		return m, nil

	case key.Matches(msg, m.FormKeys.Submit):
		if m.Busy || m.Snap.Submitting {
			return m, nil
		}
		// Enter on the first field moves on unless the form is complete
		if m.Focus == fieldName && m.Inputs[fieldPhone].Value() == "" {
			m.focusInput(fieldPhone)
			return m, nil
		}
		m.Busy = true
		draft := m.Draft()
		return m, m.run("submit", func() error {
			return m.Wizard.Submit(m.ctx, draft)
		})
	}

	return m.updateInputs(msg)
}

// updateInputs forwards a message to the focused text input
func (m AppModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.Inputs[m.Focus], cmd = m.Inputs[m.Focus].Update(msg)
	return m, cmd
}

// buildFormContent builds the form screen content
func (m AppModel) buildFormContent() string {
	var b strings.Builder

	b.WriteString(RenderTitle("Connect your WhatsApp"))
	b.WriteString("\n")
	b.WriteString(RenderSubtitle("Create an instance on the Evolution API and link it to your phone."))
	b.WriteString("\n\n")

	fields := []struct {
		label string
		hint  string
		field string
	}{
		{"Instance name", "Letters and digits only, no spaces or accents", instance.FieldInstanceName},
		{"WhatsApp number", "Country code + area code + number, digits only", instance.FieldPhoneNumber},
	}

	for i, f := range fields {
		b.WriteString(LabelStyle.Render(f.label))
		b.WriteString("\n")
		b.WriteString(m.Inputs[i].View())
		b.WriteString("\n")
		if msg := m.Snap.FieldErrors.For(f.field); msg != "" {
			b.WriteString(FieldErrorStyle.Render(msg))
		} else {
			b.WriteString(SubtitleStyle.PaddingLeft(2).Render(f.hint))
		}
		b.WriteString("\n\n")
	}

	switch {
	case m.Busy || m.Snap.Submitting:
		b.WriteString(m.Spinner.View() + " Creating instance...")
		b.WriteString("\n")
	case m.Snap.FormError != "":
		b.WriteString(RenderError(m.Snap.FormError))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(RenderSubtitle("Docs: " + urls.EvolutionInstanceAPI))

	return b.String()
}
