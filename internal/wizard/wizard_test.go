package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/evoconnect/internal/instance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testInterval = 10 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

var validDraft = instance.Draft{InstanceName: "atendimento01", PhoneNumber: "5511999999999"}

// fakeBackend answers with the configured funcs and counts calls.
type fakeBackend struct {
	create func(ctx context.Context, d instance.Draft) (*instance.Envelope, error)
	qrcode func(ctx context.Context, name string) (*instance.Envelope, error)
	status func(ctx context.Context, name string) (*instance.Envelope, error)

	createCalls atomic.Int32
	qrCalls     atomic.Int32
	statusCalls atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		create: func(context.Context, instance.Draft) (*instance.Envelope, error) {
			return ok(`{"instance":{"instanceName":"atendimento01","status":"created"}}`), nil
		},
		qrcode: func(context.Context, string) (*instance.Envelope, error) {
			return ok(`{"code":"2@abc","base64":"data:image/png;base64,AAA","pairingCode":"WZYEH1YY","count":1}`), nil
		},
		status: func(context.Context, string) (*instance.Envelope, error) {
			return ok(`{"instance":{"state":"connecting"}}`), nil
		},
	}
}

func (f *fakeBackend) CreateInstance(ctx context.Context, d instance.Draft) (*instance.Envelope, error) {
	f.createCalls.Add(1)
	return f.create(ctx, d)
}

func (f *fakeBackend) FetchQRCode(ctx context.Context, name string) (*instance.Envelope, error) {
	f.qrCalls.Add(1)
	return f.qrcode(ctx, name)
}

func (f *fakeBackend) FetchStatus(ctx context.Context, name string) (*instance.Envelope, error) {
	f.statusCalls.Add(1)
	return f.status(ctx, name)
}

func ok(data string) *instance.Envelope {
	return &instance.Envelope{Success: true, Data: json.RawMessage(data)}
}

func newTestWizard(t *testing.T, backend Backend, opts Options) *Wizard {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = testInterval
	}
	w := New(backend, opts)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func waitState(t *testing.T, w *Wizard, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return w.Snapshot().State == want }, waitFor, tick,
		"wizard never reached %s", want)
}

func TestNew_Defaults(t *testing.T) {
	w := New(newFakeBackend(), Options{MaxPolls: -3})
	defer func() { _ = w.Close() }()

	assert.Equal(t, DefaultPollInterval, w.opts.PollInterval)
	assert.Equal(t, 0, w.opts.MaxPolls)
	assert.Equal(t, StateForm, w.Snapshot().State)
}

func TestSubmit_ValidationBlocksNetwork(t *testing.T) {
	tests := []struct {
		name  string
		draft instance.Draft
		field string
	}{
		{"name too short", instance.Draft{InstanceName: "ab", PhoneNumber: "5511999999999"}, instance.FieldInstanceName},
		{"name with space", instance.Draft{InstanceName: "my shop", PhoneNumber: "5511999999999"}, instance.FieldInstanceName},
		{"name with accent", instance.Draft{InstanceName: "atenção", PhoneNumber: "5511999999999"}, instance.FieldInstanceName},
		{"phone too short", instance.Draft{InstanceName: "atendimento01", PhoneNumber: "551199"}, instance.FieldPhoneNumber},
		{"phone with symbols", instance.Draft{InstanceName: "atendimento01", PhoneNumber: "+55 11 99999-9999"}, instance.FieldPhoneNumber},
		{"both empty", instance.Draft{}, instance.FieldInstanceName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			w := newTestWizard(t, backend, Options{})

			err := w.Submit(context.Background(), tt.draft)
			var verrs instance.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.NotEmpty(t, verrs.For(tt.field))

			snap := w.Snapshot()
			assert.Equal(t, StateForm, snap.State)
			assert.NotEmpty(t, snap.FieldErrors.For(tt.field))
			assert.Equal(t, tt.draft, snap.Draft)
			assert.Zero(t, backend.createCalls.Load())
		})
	}
}

func TestSubmit_ValidInputProceeds(t *testing.T) {
	drafts := []instance.Draft{
		validDraft,
		{InstanceName: "abc", PhoneNumber: "1234567890"},
		{InstanceName: "LOJA2024", PhoneNumber: "447911123456"},
	}

	for _, d := range drafts {
		t.Run(d.InstanceName, func(t *testing.T) {
			backend := newFakeBackend()
			var got instance.Draft
			backend.create = func(_ context.Context, draft instance.Draft) (*instance.Envelope, error) {
				got = draft
				return ok(`{}`), nil
			}
			w := newTestWizard(t, backend, Options{})

			require.NoError(t, w.Submit(context.Background(), d))
			assert.Equal(t, d, got)

			snap := w.Snapshot()
			assert.Equal(t, StateScanning, snap.State)
			assert.Equal(t, d.InstanceName, snap.Session.Name)
			assert.Equal(t, d.PhoneNumber, snap.Session.Number)
			assert.Empty(t, snap.FieldErrors)
		})
	}
}

func TestSubmit_RemoteRejectionStaysInForm(t *testing.T) {
	backend := newFakeBackend()
	backend.create = func(context.Context, instance.Draft) (*instance.Envelope, error) {
		return &instance.Envelope{Success: false, Message: "instance already exists"}, nil
	}
	w := newTestWizard(t, backend, Options{})

	err := w.Submit(context.Background(), validDraft)
	var createErr *CreateError
	require.ErrorAs(t, err, &createErr)
	assert.Equal(t, "instance already exists", createErr.Message)

	snap := w.Snapshot()
	assert.Equal(t, StateForm, snap.State)
	assert.Equal(t, "instance already exists", snap.FormError)
	assert.Equal(t, validDraft, snap.Draft)
	assert.Zero(t, backend.qrCalls.Load())
	assert.False(t, snap.Polling)
}

func TestSubmit_RemoteRejectionWithoutMessage(t *testing.T) {
	backend := newFakeBackend()
	backend.create = func(context.Context, instance.Draft) (*instance.Envelope, error) {
		return &instance.Envelope{Success: false}, nil
	}
	w := newTestWizard(t, backend, Options{})

	require.Error(t, w.Submit(context.Background(), validDraft))
	assert.Equal(t, MsgCreateFailed, w.Snapshot().FormError)
}

func TestSubmit_TransportFailure(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:5000: connect: connection refused")
	backend := newFakeBackend()
	backend.create = func(context.Context, instance.Draft) (*instance.Envelope, error) {
		return nil, cause
	}
	w := newTestWizard(t, backend, Options{})

	err := w.Submit(context.Background(), validDraft)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, MsgUnreachable, w.Snapshot().FormError)
	assert.Equal(t, StateForm, w.Snapshot().State)
}

func TestSubmit_ClearsPreviousErrors(t *testing.T) {
	w := newTestWizard(t, newFakeBackend(), Options{})

	require.Error(t, w.Submit(context.Background(), instance.Draft{InstanceName: "ab"}))
	require.NotEmpty(t, w.Snapshot().FieldErrors)

	require.NoError(t, w.Submit(context.Background(), validDraft))
	snap := w.Snapshot()
	assert.Empty(t, snap.FieldErrors)
	assert.Empty(t, snap.FormError)
}

func TestSubmit_NotInForm(t *testing.T) {
	w := newTestWizard(t, newFakeBackend(), Options{})
	require.NoError(t, w.Submit(context.Background(), validDraft))

	assert.ErrorIs(t, w.Submit(context.Background(), validDraft), ErrInvalidState)
}

func TestScanning_LoadsQRCode(t *testing.T) {
	backend := newFakeBackend()
	w := newTestWizard(t, backend, Options{PollInterval: time.Hour})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	require.Eventually(t, func() bool { return w.Snapshot().Session.HasQRCode() }, waitFor, tick)

	s := w.Snapshot().Session
	assert.Equal(t, "data:image/png;base64,AAA", s.QRCodeImage)
	assert.Equal(t, "2@abc", s.QRCode)
	assert.Equal(t, "WZYEH1YY", s.PairingCode)
	assert.Equal(t, 1, s.QRCount)
	assert.Equal(t, int32(1), backend.qrCalls.Load())
}

func TestScanning_PlaceholderUntilFirstQRCode(t *testing.T) {
	release := make(chan struct{})
	backend := newFakeBackend()
	inner := backend.qrcode
	backend.qrcode = func(ctx context.Context, name string) (*instance.Envelope, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return inner(ctx, name)
	}
	w := newTestWizard(t, backend, Options{PollInterval: time.Hour})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	snap := w.Snapshot()
	assert.Equal(t, StateScanning, snap.State)
	assert.False(t, snap.Session.HasQRCode())

	close(release)
	require.Eventually(t, func() bool { return w.Snapshot().Session.HasQRCode() }, waitFor, tick)
}

func TestScanning_SlowQRCodeDoesNotDelayStatus(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	backend := newFakeBackend()
	backend.qrcode = func(ctx context.Context, name string) (*instance.Envelope, error) {
		select {
		case <-release:
			return ok(`{"code":"2@late"}`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	backend.status = func(context.Context, string) (*instance.Envelope, error) {
		return ok(`{"instance":{"state":"open"}}`), nil
	}
	w := newTestWizard(t, backend, Options{})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	waitState(t, w, StateConnected)
	assert.False(t, w.Snapshot().Session.HasQRCode(), "QR code should still be pending")
}

func TestScanning_OpenMovesToConnected(t *testing.T) {
	backend := newFakeBackend()
	backend.status = func(context.Context, string) (*instance.Envelope, error) {
		return ok(`{"instance":{"instanceName":"atendimento01","state":"open"}}`), nil
	}
	w := newTestWizard(t, backend, Options{})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	waitState(t, w, StateConnected)

	calls := backend.statusCalls.Load()
	time.Sleep(10 * testInterval)
	assert.Equal(t, calls, backend.statusCalls.Load(), "status checks continued after connecting")
	assert.False(t, w.Snapshot().Polling)
	assert.Equal(t, validDraft.InstanceName, w.Snapshot().Session.Name)
}

func TestScanning_ConnectingKeepsPolling(t *testing.T) {
	backend := newFakeBackend()
	w := newTestWizard(t, backend, Options{})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	require.Eventually(t, func() bool { return backend.statusCalls.Load() >= 3 }, waitFor, tick)

	snap := w.Snapshot()
	assert.Equal(t, StateScanning, snap.State)
	assert.True(t, snap.Polling)
	assert.GreaterOrEqual(t, snap.Polls, 3)
}

func TestScanning_PollFailuresIgnored(t *testing.T) {
	backend := newFakeBackend()
	var n atomic.Int32
	backend.status = func(context.Context, string) (*instance.Envelope, error) {
		switch n.Add(1) {
		case 1:
			return nil, errors.New("connection reset by peer")
		case 2:
			return &instance.Envelope{Success: false, Message: "Failed to check status"}, nil
		case 3:
			return ok(`<not json>`), nil
		default:
			return ok(`{"instance":{"state":"open"}}`), nil
		}
	}
	w := newTestWizard(t, backend, Options{})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	waitState(t, w, StateConnected)
	assert.GreaterOrEqual(t, n.Load(), int32(4))
	assert.Empty(t, w.Snapshot().Session.ErrorMessage)
}

func TestScanning_MaxPolls(t *testing.T) {
	backend := newFakeBackend()
	w := newTestWizard(t, backend, Options{MaxPolls: 2})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	require.Eventually(t, func() bool { return !w.Snapshot().Polling }, waitFor, tick)

	snap := w.Snapshot()
	assert.Equal(t, StateScanning, snap.State)
	assert.Equal(t, fmt.Sprintf(msgNotConfirmed, 2), snap.Session.ErrorMessage)

	time.Sleep(5 * testInterval)
	assert.Equal(t, int32(2), backend.statusCalls.Load())

	// Refreshing resumes status checks.
	require.NoError(t, w.RefreshQRCode(context.Background()))
	require.Eventually(t, func() bool { return backend.statusCalls.Load() > 2 }, waitFor, tick)
}

func TestRefreshQRCode_KeepsLatest(t *testing.T) {
	backend := newFakeBackend()
	var count atomic.Int32
	backend.qrcode = func(context.Context, string) (*instance.Envelope, error) {
		c := count.Add(1)
		return ok(fmt.Sprintf(`{"code":"2@code%d","base64":"data:image/png;base64,IMG%d","count":%d}`, c, c, c)), nil
	}
	w := newTestWizard(t, backend, Options{PollInterval: time.Hour})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	require.Eventually(t, func() bool { return w.Snapshot().Session.QRCount == 1 }, waitFor, tick)

	require.NoError(t, w.RefreshQRCode(context.Background()))
	require.NoError(t, w.RefreshQRCode(context.Background()))

	snap := w.Snapshot()
	assert.Equal(t, StateScanning, snap.State)
	assert.Equal(t, 3, snap.Session.QRCount)
	assert.Equal(t, "2@code3", snap.Session.QRCode)
	assert.Equal(t, "data:image/png;base64,IMG3", snap.Session.QRCodeImage)
}

func TestRefreshQRCode_Failure(t *testing.T) {
	backend := newFakeBackend()
	w := newTestWizard(t, backend, Options{PollInterval: time.Hour})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	require.Eventually(t, func() bool { return w.Snapshot().Session.HasQRCode() }, waitFor, tick)

	backend.qrcode = func(context.Context, string) (*instance.Envelope, error) {
		return &instance.Envelope{Success: false, Message: "instance not found"}, nil
	}
	require.Error(t, w.RefreshQRCode(context.Background()))

	snap := w.Snapshot()
	assert.Equal(t, StateScanning, snap.State)
	assert.Equal(t, "instance not found", snap.Session.ErrorMessage)
	assert.Equal(t, "2@abc", snap.Session.QRCode, "previous code should stay visible")
}

func TestRefreshQRCode_NotScanning(t *testing.T) {
	w := newTestWizard(t, newFakeBackend(), Options{})
	assert.ErrorIs(t, w.RefreshQRCode(context.Background()), ErrInvalidState)
}

func TestCancel_ResetsEverything(t *testing.T) {
	statusStarted := make(chan struct{}, 1)
	backend := newFakeBackend()
	backend.status = func(ctx context.Context, _ string) (*instance.Envelope, error) {
		select {
		case statusStarted <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	w := newTestWizard(t, backend, Options{})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	require.Eventually(t, func() bool { return w.Snapshot().Session.HasQRCode() }, waitFor, tick)
	<-statusStarted

	require.NoError(t, w.Cancel())

	snap := w.Snapshot()
	assert.Equal(t, StateForm, snap.State)
	assert.Equal(t, Session{}, snap.Session)
	assert.Equal(t, instance.Draft{}, snap.Draft)
	assert.Empty(t, snap.FormError)
	assert.False(t, snap.Polling)

	calls := backend.statusCalls.Load()
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, backend.statusCalls.Load())
}

func TestCancel_DropsInFlightQRCode(t *testing.T) {
	refreshStarted := make(chan struct{})
	release := make(chan struct{})
	backend := newFakeBackend()
	w := newTestWizard(t, backend, Options{PollInterval: time.Hour})

	require.NoError(t, w.Submit(context.Background(), validDraft))
	require.Eventually(t, func() bool { return w.Snapshot().Session.HasQRCode() }, waitFor, tick)

	// The refresh ignores cancellation so its answer arrives after Cancel.
	backend.qrcode = func(context.Context, string) (*instance.Envelope, error) {
		close(refreshStarted)
		<-release
		return ok(`{"code":"2@stale","count":9}`), nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.RefreshQRCode(context.Background())
	}()
	<-refreshStarted

	require.NoError(t, w.Cancel())
	backend.qrcode = newFakeBackend().qrcode
	require.NoError(t, w.Submit(context.Background(), instance.Draft{InstanceName: "loja02", PhoneNumber: "5511888888888"}))
	require.Eventually(t, func() bool { return w.Snapshot().Session.HasQRCode() }, waitFor, tick)

	close(release)
	wg.Wait()

	snap := w.Snapshot()
	assert.Equal(t, "loja02", snap.Session.Name)
	assert.Equal(t, "2@abc", snap.Session.QRCode)
	assert.Equal(t, 1, snap.Session.QRCount)
}

func TestCancel_NotScanning(t *testing.T) {
	w := newTestWizard(t, newFakeBackend(), Options{})
	assert.ErrorIs(t, w.Cancel(), ErrInvalidState)
}

func TestRestart(t *testing.T) {
	backend := newFakeBackend()
	backend.status = func(context.Context, string) (*instance.Envelope, error) {
		return ok(`{"instance":{"state":"open"}}`), nil
	}
	w := newTestWizard(t, backend, Options{})

	assert.ErrorIs(t, w.Restart(), ErrInvalidState)

	require.NoError(t, w.Submit(context.Background(), validDraft))
	waitState(t, w, StateConnected)

	require.NoError(t, w.Restart())
	snap := w.Snapshot()
	assert.Equal(t, StateForm, snap.State)
	assert.Equal(t, Session{}, snap.Session)
	assert.Equal(t, instance.Draft{}, snap.Draft)
}

func TestUpdates_Signalled(t *testing.T) {
	w := newTestWizard(t, newFakeBackend(), Options{PollInterval: time.Hour})

	require.Error(t, w.Submit(context.Background(), instance.Draft{}))
	select {
	case <-w.Updates():
	case <-time.After(waitFor):
		t.Fatal("no update after failed validation")
	}
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := newFakeBackend()
	w := New(backend, Options{PollInterval: testInterval})
	require.NoError(t, w.Submit(context.Background(), validDraft))
	require.Eventually(t, func() bool { return backend.statusCalls.Load() >= 1 }, waitFor, tick)

	require.NoError(t, w.Close())

	_, open := <-w.Updates()
	for open {
		_, open = <-w.Updates()
	}

	assert.ErrorIs(t, w.Close(), ErrClosed)
	assert.ErrorIs(t, w.Submit(context.Background(), validDraft), ErrClosed)
	assert.ErrorIs(t, w.RefreshQRCode(context.Background()), ErrClosed)
	assert.ErrorIs(t, w.Cancel(), ErrClosed)
	assert.ErrorIs(t, w.Restart(), ErrClosed)

	calls := backend.statusCalls.Load()
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, backend.statusCalls.Load())
}
