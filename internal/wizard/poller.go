package wizard

import (
	"context"
	"fmt"
	"time"

	"github.com/muurk/evoconnect/internal/instance"
	"github.com/muurk/evoconnect/internal/logging"
	"go.uber.org/zap"
)

// poller is the status check loop of one scanning session.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// wait blocks until the loop has returned. A nil poller returns at once.
func (p *poller) wait() {
	if p == nil {
		return
	}
	<-p.done
}

// startPollerLocked starts the loop for the current generation. With
// loadQR a first QR code is fetched alongside, so a slow fetch does not
// hold back status checks.
func (w *Wizard) startPollerLocked(loadQR bool) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel, done: make(chan struct{})}
	w.poller = p
	w.polls = 0

	w.wg.Add(1)
	go w.poll(ctx, p, w.session.Name)

	if loadQR {
		w.wg.Add(1)
		go w.loadFirstQRCode(ctx, w.generation, w.session.Name)
	}
}

// loadFirstQRCode runs under the poller's context and is aborted with it.
func (w *Wizard) loadFirstQRCode(ctx context.Context, gen uint64, name string) {
	defer w.wg.Done()
	if err := w.fetchQRCode(ctx, gen, name); err != nil {
		logging.Debug("Initial QR code fetch failed", zap.String("instance", name), zap.Error(err))
	}
}

// stopPollerLocked detaches and cancels the current loop. Callers outside
// the loop wait on the returned poller after unlocking.
func (w *Wizard) stopPollerLocked() *poller {
	p := w.poller
	w.poller = nil
	if p != nil {
		p.cancel()
	}
	return p
}

func (w *Wizard) poll(ctx context.Context, p *poller, name string) {
	defer w.wg.Done()
	defer close(p.done)
	defer p.cancel()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.checkStatus(ctx, p, name) {
				return
			}
		}
	}
}

// checkStatus runs one status check and reports whether polling goes on.
// Failures are logged and otherwise ignored.
func (w *Wizard) checkStatus(ctx context.Context, p *poller, name string) bool {
	env, err := w.backend.FetchStatus(ctx, name)
	if ctx.Err() != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.poller != p {
		return false
	}
	w.polls++

	state, perr := statusOf(env, err)
	if perr != nil {
		logging.Debug("Status check failed",
			zap.String("instance", name),
			zap.Int("poll", w.polls),
			zap.Error(perr),
		)
	} else {
		logging.Debug("Status check", zap.String("instance", name), zap.String("state", state))
	}

	if perr == nil && instance.IsConnected(state) {
		logging.Info("Instance connected", zap.String("instance", name), zap.Int("polls", w.polls))
		w.poller = nil
		w.state = StateConnected
		w.session.ErrorMessage = ""
		w.notifyLocked()
		return false
	}

	if w.opts.MaxPolls > 0 && w.polls >= w.opts.MaxPolls {
		logging.Warn("Giving up on status checks", zap.String("instance", name), zap.Int("polls", w.polls))
		w.poller = nil
		w.session.ErrorMessage = fmt.Sprintf(msgNotConfirmed, w.polls)
		w.notifyLocked()
		return false
	}

	w.notifyLocked()
	return true
}

func statusOf(env *instance.Envelope, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", fmt.Errorf("status rejected: %s", env.Message)
	}
	return instance.ParseConnectionState(env.Data)
}
