package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/evoconnect/internal/instance"
	"github.com/muurk/evoconnect/internal/logging"
	"github.com/muurk/evoconnect/internal/wizard"
	"go.uber.org/zap"
)

// Messages for async wizard actions
type wizardUpdateMsg struct{}
type wizardClosedMsg struct{}
type actionDoneMsg struct {
	action string
	err    error
}

// Form field indexes
const (
	fieldName = iota
	fieldPhone
	fieldCount
)

// AppModel is the top-level model. It renders the wizard snapshot and turns
// key presses into wizard actions.
type AppModel struct {
	Wizard *wizard.Wizard
	ctx    context.Context

	// Snap is the last state read from the wizard
	Snap wizard.Snapshot

	// Form state
	Inputs []textinput.Model
	Focus  int

	// UI state
	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Busy    bool

	FormKeys      formKeyMap
	ScanningKeys  scanningKeyMap
	ConnectedKeys connectedKeyMap
}

// NewAppModel creates the model for w. ctx bounds every wizard call made
// from the UI.
func NewAppModel(ctx context.Context, w *wizard.Wizard) AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	name := textinput.New()
	name.Placeholder = "atendimento01"
	name.CharLimit = 64
	name.Width = 32
	name.Prompt = "› "

	phone := textinput.New()
	phone.Placeholder = "5511999999999"
	phone.CharLimit = 20
	phone.Width = 32
	phone.Prompt = "› "

	m := AppModel{
		Wizard:        w,
		ctx:           ctx,
		Snap:          w.Snapshot(),
		Inputs:        []textinput.Model{name, phone},
		Spinner:       s,
		Help:          help.New(),
		FormKeys:      newFormKeys(),
		ScanningKeys:  newScanningKeys(),
		ConnectedKeys: newConnectedKeys(),
		Width:         80,
		Height:        30,
	}
	m.focusInput(fieldName)
	return m
}

// Init starts the cursor blink, the spinner and the wizard listener
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.Spinner.Tick,
		waitForUpdate(m.Wizard.Updates()),
	)
}

// waitForUpdate turns the next wizard signal into a message
func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return wizardClosedMsg{}
		}
		return wizardUpdateMsg{}
	}
}

// Update handles all messages and routes key presses by wizard state
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		return m, nil

	case wizardUpdateMsg:
		return m.refresh(), waitForUpdate(m.Wizard.Updates())

	case wizardClosedMsg:
		return m, tea.Quit

	case actionDoneMsg:
		m.Busy = false
		if msg.err != nil && !errors.Is(msg.err, wizard.ErrInvalidState) {
			logging.Debug("Wizard action finished with error",
				zap.String("action", msg.action),
				zap.Error(msg.err),
			)
		}
		return m.refresh(), nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.Snap.State {
		case wizard.StateScanning:
			return m.updateScanning(msg)
		case wizard.StateConnected:
			return m.updateConnected(msg)
		default:
			return m.updateForm(msg)
		}
	}

	if m.Snap.State == wizard.StateForm {
		return m.updateInputs(msg)
	}
	return m, nil
}

// refresh re-reads the wizard and resets the form when the wizard went
// back to it.
func (m AppModel) refresh() AppModel {
	prev := m.Snap.State
	m.Snap = m.Wizard.Snapshot()

	if m.Snap.State == wizard.StateForm && prev != wizard.StateForm {
		for i := range m.Inputs {
			m.Inputs[i].SetValue("")
		}
		m.focusInput(fieldName)
	}
	if m.Snap.State != wizard.StateForm {
		for i := range m.Inputs {
			m.Inputs[i].Blur()
		}
	}
	return m
}

func (m *AppModel) focusInput(i int) {
	m.Focus = (i + fieldCount) % fieldCount
	for j := range m.Inputs {
		if j == m.Focus {
			m.Inputs[j].Focus()
			m.Inputs[j].PromptStyle = FocusedInputStyle
			m.Inputs[j].TextStyle = FocusedInputStyle
		} else {
			m.Inputs[j].Blur()
			m.Inputs[j].PromptStyle = BlurredInputStyle
			m.Inputs[j].TextStyle = BlurredInputStyle
		}
	}
}

// Draft returns what the user typed
func (m AppModel) Draft() instance.Draft {
	return instance.Draft{
		InstanceName: m.Inputs[fieldName].Value(),
		PhoneNumber:  m.Inputs[fieldPhone].Value(),
	}
}

// run executes a blocking wizard action off the UI loop
func (m AppModel) run(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn()}
	}
}

// View renders the screen for the current wizard state
func (m AppModel) View() string {
	switch m.Snap.State {
	case wizard.StateScanning:
		return RenderApplicationContainer(m.buildScanningContent(), m.Help.View(m.ScanningKeys), m.Width, m.Height)
	case wizard.StateConnected:
		return RenderApplicationContainer(m.buildConnectedContent(), m.Help.View(m.ConnectedKeys), m.Width, m.Height)
	default:
		return RenderApplicationContainer(m.buildFormContent(), m.Help.View(m.FormKeys), m.Width, m.Height)
	}
}

// Run shows the wizard full screen until the user quits or ctx is done
func Run(ctx context.Context, w *wizard.Wizard) error {
	program := tea.NewProgram(NewAppModel(ctx, w), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
