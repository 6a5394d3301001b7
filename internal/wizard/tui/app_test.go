package tui

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/evoconnect/internal/instance"
	"github.com/muurk/evoconnect/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu      sync.Mutex
	drafts  []instance.Draft
	created *instance.Envelope
}

func (s *stubBackend) CreateInstance(_ context.Context, d instance.Draft) (*instance.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, d)
	if s.created != nil {
		return s.created, nil
	}
	return &instance.Envelope{Success: true, Data: json.RawMessage(`{}`)}, nil
}

func (s *stubBackend) FetchQRCode(context.Context, string) (*instance.Envelope, error) {
	return &instance.Envelope{Success: true, Data: json.RawMessage(`{"code":"2@abc","pairingCode":"WZYEH1YY","count":1}`)}, nil
}

func (s *stubBackend) FetchStatus(context.Context, string) (*instance.Envelope, error) {
	return &instance.Envelope{Success: true, Data: json.RawMessage(`{"instance":{"state":"connecting"}}`)}, nil
}

func newTestModel(t *testing.T, backend wizard.Backend) AppModel {
	t.Helper()
	w := wizard.New(backend, wizard.Options{PollInterval: time.Hour})
	t.Cleanup(func() { _ = w.Close() })
	return NewAppModel(context.Background(), w)
}

// send feeds msg to the model. Wizard actions triggered by enter or esc run
// inline; other commands (cursor blink) are dropped.
func send(t *testing.T, m AppModel, msg tea.Msg) AppModel {
	t.Helper()
	updated, cmd := m.Update(msg)
	m = updated.(AppModel)

	k, isKey := msg.(tea.KeyMsg)
	if isKey && cmd != nil && (k.Type == tea.KeyEnter || k.Type == tea.KeyEsc) {
		if done, ok := cmd().(actionDoneMsg); ok {
			updated, _ = m.Update(done)
			m = updated.(AppModel)
		}
	}
	return m
}

func typeText(t *testing.T, m AppModel, text string) AppModel {
	t.Helper()
	return send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func TestForm_SubmitMovesToScanning(t *testing.T) {
	backend := &stubBackend{}
	m := newTestModel(t, backend)

	m = typeText(t, m, "atendimento01")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "5511999999999")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.Len(t, backend.drafts, 1)
	assert.Equal(t, instance.Draft{InstanceName: "atendimento01", PhoneNumber: "5511999999999"}, backend.drafts[0])
	assert.Equal(t, wizard.StateScanning, m.Snap.State)
	assert.False(t, m.Busy)
}

func TestForm_EnterOnNameMovesToPhone(t *testing.T) {
	m := newTestModel(t, &stubBackend{})

	m = typeText(t, m, "atendimento01")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, fieldPhone, m.Focus)
	assert.Equal(t, wizard.StateForm, m.Snap.State)
}

func TestForm_FieldErrorsShown(t *testing.T) {
	backend := &stubBackend{}
	m := newTestModel(t, backend)

	m = typeText(t, m, "ab")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "123")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Empty(t, backend.drafts)
	view := m.View()
	assert.Contains(t, view, "name must be at least 3 characters")
	assert.Contains(t, view, "enter a valid number including area code")
	assert.Equal(t, "ab", m.Inputs[fieldName].Value(), "input is kept for correction")
}

func TestForm_RemoteErrorShown(t *testing.T) {
	backend := &stubBackend{created: &instance.Envelope{Success: false, Message: "instance already exists"}}
	m := newTestModel(t, backend)

	m = typeText(t, m, "atendimento01")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "5511999999999")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, wizard.StateForm, m.Snap.State)
	assert.Contains(t, m.View(), "instance already exists")
}

func TestScanning_ShowsCodes(t *testing.T) {
	m := newTestModel(t, &stubBackend{})

	m = typeText(t, m, "atendimento01")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "5511999999999")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.Eventually(t, func() bool { return m.Wizard.Snapshot().Session.HasQRCode() }, 2*time.Second, 5*time.Millisecond)
	m = send(t, m, wizardUpdateMsg{})

	view := m.View()
	assert.Contains(t, view, "Scan the QR code")
	assert.Contains(t, view, "WZYEH1YY")
	assert.Contains(t, view, "QR code #1")
}

func TestScanning_CancelResetsForm(t *testing.T) {
	m := newTestModel(t, &stubBackend{})

	m = typeText(t, m, "atendimento01")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "5511999999999")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, wizard.StateScanning, m.Snap.State)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, wizard.StateForm, m.Snap.State)
	assert.Empty(t, m.Inputs[fieldName].Value())
	assert.Empty(t, m.Inputs[fieldPhone].Value())
	assert.Equal(t, fieldName, m.Focus)
}

func TestWaitForUpdate(t *testing.T) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	assert.IsType(t, wizardUpdateMsg{}, waitForUpdate(ch)())

	close(ch)
	assert.IsType(t, wizardClosedMsg{}, waitForUpdate(ch)())
}

func TestRenderQRCode(t *testing.T) {
	out, err := RenderQRCode("2@y8eK+bjtEjUWy9/FOM")
	require.NoError(t, err)
	assert.Greater(t, len(strings.Split(out, "\n")), 10)

	_, err = RenderQRCode("")
	assert.Error(t, err)
}
