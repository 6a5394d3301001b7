package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/evoconnect/internal/instance"
	"github.com/muurk/evoconnect/internal/logging"
	"go.uber.org/zap"
)

// State is the wizard step currently shown to the user.
type State string

const (
	StateForm      State = "form"
	StateScanning  State = "scanning"
	StateConnected State = "connected"
)

// DefaultPollInterval is the delay between two connection status checks.
const DefaultPollInterval = 3 * time.Second

// Messages shown when the relay gives nothing better.
const (
	MsgUnreachable  = "Could not reach the server. Check your connection and try again."
	MsgCreateFailed = "Failed to create instance"
	MsgQRCodeFailed = "Failed to fetch QR code"
	msgNotConfirmed = "Connection not confirmed after %d checks. Refresh the QR code or cancel."
)

var (
	// ErrInvalidState is returned when an action does not apply to the current step.
	ErrInvalidState = errors.New("action not allowed in current wizard state")

	// ErrClosed is returned by every method once Close has been called.
	ErrClosed = errors.New("wizard closed")
)

// Backend is the relay as seen by the wizard. Envelopes with success=false
// are answers, errors mean no usable answer arrived.
type Backend interface {
	CreateInstance(ctx context.Context, draft instance.Draft) (*instance.Envelope, error)
	FetchQRCode(ctx context.Context, instanceName string) (*instance.Envelope, error)
	FetchStatus(ctx context.Context, instanceName string) (*instance.Envelope, error)
}

// CreateError is returned by Submit when the instance could not be created.
// Message is what the user sees.
type CreateError struct {
	Message string
	Err     error
}

func (e *CreateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CreateError) Unwrap() error {
	return e.Err
}

// Options tunes the scanning step.
type Options struct {
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// MaxPolls stops status checks after that many attempts without a
	// connection. Zero polls until the user leaves the step.
	MaxPolls int
}

// Session is the instance being paired. It only exists outside the form.
type Session struct {
	Name   string
	Number string

	// QRCodeImage is a data URI (or URL) of the QR image, empty until the
	// first code arrives.
	QRCodeImage string
	// QRCode is the raw string behind the image, for terminal rendering.
	QRCode      string
	PairingCode string
	QRCount     int

	ErrorMessage string
}

// HasQRCode reports whether anything scannable or typeable has arrived.
func (s Session) HasQRCode() bool {
	return s.QRCodeImage != "" || s.QRCode != "" || s.PairingCode != ""
}

// Snapshot is a copy of the wizard state, safe to read without locking.
type Snapshot struct {
	State State

	// Draft holds the last submitted form input. It is kept after a failed
	// submit and cleared by Cancel and Restart.
	Draft       instance.Draft
	FieldErrors instance.ValidationErrors
	FormError   string
	Submitting  bool

	Session Session
	Polls   int
	Polling bool
}

// Wizard drives one user through creating an instance, scanning its QR
// code and waiting for the connection. All methods are safe for
// concurrent use.
type Wizard struct {
	backend Backend
	opts    Options

	mu          sync.Mutex
	state       State
	draft       instance.Draft
	fieldErrors instance.ValidationErrors
	formError   string
	submitting  bool
	session     Session
	polls       int
	closed      bool

	// generation changes on every entry to and exit from scanning. Results
	// of calls started under another generation are dropped.
	generation uint64
	poller     *poller
	wg         sync.WaitGroup

	updates chan struct{}
}

// New creates a wizard in the form state.
func New(backend Backend, opts Options) *Wizard {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPolls < 0 {
		opts.MaxPolls = 0
	}
	return &Wizard{
		backend: backend,
		opts:    opts,
		state:   StateForm,
		updates: make(chan struct{}, 1),
	}
}

// Updates is signalled after every change. Signals coalesce, so readers
// should call Snapshot after each one. The channel is closed by Close.
func (w *Wizard) Updates() <-chan struct{} {
	return w.updates
}

// Snapshot returns the current state.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		State:      w.state,
		Draft:      w.draft,
		FormError:  w.formError,
		Submitting: w.submitting,
		Session:    w.session,
		Polls:      w.polls,
		Polling:    w.poller != nil,
	}
	if len(w.fieldErrors) > 0 {
		snap.FieldErrors = append(instance.ValidationErrors(nil), w.fieldErrors...)
	}
	return snap
}

// Submit validates draft and creates the instance. On success the wizard
// moves to scanning, fetches the first QR code and starts checking the
// connection status. Validation failures return instance.ValidationErrors
// and never reach the backend; remote failures return *CreateError. In both
// cases the wizard stays in the form.
func (w *Wizard) Submit(ctx context.Context, draft instance.Draft) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.state != StateForm || w.submitting {
		w.mu.Unlock()
		return ErrInvalidState
	}

	w.draft = draft
	w.formError = ""
	if err := draft.Validate(); err != nil {
		var verrs instance.ValidationErrors
		if errors.As(err, &verrs) {
			w.fieldErrors = verrs
		}
		w.notifyLocked()
		w.mu.Unlock()
		return err
	}
	w.fieldErrors = nil
	w.submitting = true
	w.notifyLocked()
	w.mu.Unlock()

	env, err := w.backend.CreateInstance(ctx, draft)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if w.closed {
		return ErrClosed
	}

	if err != nil {
		logging.Warn("Create instance failed", zap.String("instance", draft.InstanceName), zap.Error(err))
		w.formError = MsgUnreachable
		w.notifyLocked()
		return &CreateError{Message: MsgUnreachable, Err: err}
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = MsgCreateFailed
		}
		logging.Info("Create instance rejected", zap.String("instance", draft.InstanceName), zap.String("message", msg))
		w.formError = msg
		w.notifyLocked()
		return &CreateError{Message: msg}
	}

	logging.Info("Instance created", zap.String("instance", draft.InstanceName))
	w.generation++
	w.session = Session{Name: draft.InstanceName, Number: draft.PhoneNumber}
	w.state = StateScanning
	w.startPollerLocked(true)
	w.notifyLocked()
	return nil
}

// RefreshQRCode fetches a new QR code for the current instance. The state
// does not change. If status checks had stopped after MaxPolls they start
// again.
func (w *Wizard) RefreshQRCode(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.state != StateScanning {
		w.mu.Unlock()
		return ErrInvalidState
	}
	gen, name := w.generation, w.session.Name
	if w.poller == nil {
		w.startPollerLocked(false)
	}
	w.mu.Unlock()

	return w.fetchQRCode(ctx, gen, name)
}

// Cancel leaves scanning for an empty form. In-flight calls are aborted
// and their results ignored.
func (w *Wizard) Cancel() error {
	return w.reset(StateScanning)
}

// Restart leaves the connected step for an empty form.
func (w *Wizard) Restart() error {
	return w.reset(StateConnected)
}

func (w *Wizard) reset(from State) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.state != from {
		w.mu.Unlock()
		return ErrInvalidState
	}

	p := w.stopPollerLocked()
	w.generation++
	w.state = StateForm
	w.session = Session{}
	w.draft = instance.Draft{}
	w.fieldErrors = nil
	w.formError = ""
	w.polls = 0
	w.notifyLocked()
	w.mu.Unlock()

	p.wait()
	return nil
}

// Close stops any background work and waits for it. Every later call,
// including Close, returns ErrClosed.
func (w *Wizard) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	p := w.stopPollerLocked()
	w.generation++
	close(w.updates)
	w.mu.Unlock()

	p.wait()
	w.wg.Wait()
	return nil
}

// fetchQRCode asks the backend for a code and applies it if the session is
// still the one it was requested for.
func (w *Wizard) fetchQRCode(ctx context.Context, gen uint64, name string) error {
	env, err := w.backend.FetchQRCode(ctx, name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if gen != w.generation || w.state != StateScanning {
		logging.Debug("Discarding stale QR code", zap.String("instance", name))
		return nil
	}

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn("QR code fetch failed", zap.String("instance", name), zap.Error(err))
		w.session.ErrorMessage = MsgUnreachable
		w.notifyLocked()
		return fmt.Errorf("fetch QR code: %w", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = MsgQRCodeFailed
		}
		w.session.ErrorMessage = msg
		w.notifyLocked()
		return errors.New(msg)
	}

	qr, err := instance.ParseQRCode(env.Data)
	if err != nil {
		logging.Warn("Unreadable QR code payload", zap.String("instance", name), zap.Error(err))
		w.session.ErrorMessage = MsgQRCodeFailed
		w.notifyLocked()
		return fmt.Errorf("fetch QR code: %w", err)
	}
	if qr.Empty() {
		logging.Debug("QR code payload carries no code", zap.String("instance", name))
		return nil
	}

	w.session.QRCodeImage = qr.Base64
	w.session.QRCode = qr.Code
	w.session.PairingCode = qr.PairingCode
	w.session.QRCount = qr.Count
	w.session.ErrorMessage = ""
	w.notifyLocked()
	return nil
}

// notifyLocked signals readers of Updates without blocking.
func (w *Wizard) notifyLocked() {
	if w.closed {
		return
	}
	select {
	case w.updates <- struct{}{}:
	default:
	}
}
