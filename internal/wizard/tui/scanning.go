package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/evoconnect/internal/logging"
	"github.com/muurk/evoconnect/internal/urls"
	"go.uber.org/zap"
)

// updateScanning handles keyboard input while the QR code is shown
func (m AppModel) updateScanning(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.ScanningKeys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.ScanningKeys.Refresh):
		if m.Busy {
			return m, nil
		}
		m.Busy = true
		return m, m.run("refresh", func() error {
			return m.Wizard.RefreshQRCode(m.ctx)
		})

	case key.Matches(msg, m.ScanningKeys.Cancel):
		return m, m.run("cancel", m.Wizard.Cancel)
	}

	return m, nil
}

// buildScanningContent builds the QR code screen content
func (m AppModel) buildScanningContent() string {
	s := m.Snap.Session
	var b strings.Builder

	b.WriteString(RenderTitle("Scan the QR code"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Instance %s • number %s\n\n", LabelStyle.Render(s.Name), LabelStyle.Render(s.Number)))

	b.WriteString("On your phone open WhatsApp → Settings → Linked devices → Link a device\n")
	b.WriteString(RenderSubtitle(urls.LinkedDevices))
	b.WriteString("\n\n")

	switch {
	case s.QRCode != "":
		qr, err := RenderQRCode(s.QRCode)
		if err != nil {
			logging.Warn("Failed to render QR code", zap.Error(err))
			b.WriteString(RenderWarning("The QR code could not be drawn in this terminal."))
		} else {
			b.WriteString(QRStyle.Render(qr))
		}
		b.WriteString("\n")
	case s.QRCodeImage != "":
		b.WriteString(RenderWarning("Only an image was returned. Use `evoconnect connect --save-qr` to save it."))
		b.WriteString("\n")
	case s.PairingCode == "":
		b.WriteString(m.Spinner.View() + " Loading QR code...")
		b.WriteString("\n")
	}

	if s.PairingCode != "" {
		b.WriteString("\nOr choose \"Link with phone number instead\" and type:\n")
		b.WriteString(PairingCodeStyle.Render(s.PairingCode))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if s.ErrorMessage != "" {
		b.WriteString(RenderError(s.ErrorMessage))
		b.WriteString("\n")
	} else if m.Snap.Polling {
		b.WriteString(m.Spinner.View() + " Waiting for the phone to connect...")
		b.WriteString("\n")
	}

	if s.QRCount > 0 {
		b.WriteString(RenderSubtitle(fmt.Sprintf("QR code #%d", s.QRCount)))
		b.WriteString("\n")
	}

	return b.String()
}
