package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/muurk/evoconnect/internal/instance"
	"github.com/muurk/evoconnect/internal/logging"
	"github.com/muurk/evoconnect/internal/urls"
	"github.com/muurk/evoconnect/internal/wizard"
	"github.com/muurk/evoconnect/internal/wizard/tui"
)

// defaultQRRefresh stays under the lifetime of a WhatsApp pairing code
const defaultQRRefresh = 30 * time.Second

var errInvalidInput = errors.New("invalid input")

type connectOptions struct {
	Wizard wizard.Options

	// QRRefresh fetches a new code at this interval; zero keeps the first one
	QRRefresh time.Duration

	// SaveQR is a PNG path rewritten with every new code
	SaveQR string
}

// connectInstance runs the wizard headless: create the instance, print each
// QR code to out and return once the phone is connected. It gives up when
// ctx is done or when status checks stop after Options.MaxPolls.
func connectInstance(ctx context.Context, backend wizard.Backend, draft instance.Draft, out io.Writer, opts connectOptions) error {
	w := wizard.New(backend, opts.Wizard)
	defer func() { _ = w.Close() }()

	if err := w.Submit(ctx, draft); err != nil {
		var verrs instance.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fmt.Fprintf(out, "  %s: %s\n", fe.Field, fe.Message)
			}
			return errInvalidInput
		}
		return err
	}

	fmt.Fprintln(out, "Instance created. Open WhatsApp > Linked devices > Link a device and scan:")
	fmt.Fprintf(out, "(%s)\n\n", urls.LinkedDevices)

	var refresh <-chan time.Time
	if opts.QRRefresh > 0 {
		ticker := time.NewTicker(opts.QRRefresh)
		defer ticker.Stop()
		refresh = ticker.C
	}

	var shown wizard.Session
	for {
		snap := w.Snapshot()
		if snap.State == wizard.StateConnected {
			fmt.Fprintf(out, "\nConnected! %s is linked to %s.\n", snap.Session.Number, snap.Session.Name)
			return nil
		}
		if snap.State != wizard.StateScanning {
			return fmt.Errorf("wizard left the scanning step unexpectedly")
		}

		shown = printSessionChanges(out, shown, snap.Session, opts.SaveQR)

		// Only the poll cap stops status checks while scanning.
		if !snap.Polling {
			return fmt.Errorf("not connected after %d status checks", snap.Polls)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-refresh:
			if err := w.RefreshQRCode(ctx); err != nil {
				logging.Debug("QR code refresh failed", zap.Error(err))
			}
		case _, ok := <-w.Updates():
			if !ok {
				return wizard.ErrClosed
			}
		}
	}
}

// printSessionChanges prints what differs between prev and cur and returns cur
func printSessionChanges(out io.Writer, prev, cur wizard.Session, savePath string) wizard.Session {
	if cur.QRCode != prev.QRCode || cur.QRCodeImage != prev.QRCodeImage {
		if cur.QRCode != "" {
			art, err := tui.RenderQRCode(cur.QRCode)
			if err != nil {
				fmt.Fprintf(out, "Warning: %v\n", err)
			} else {
				fmt.Fprintln(out, art)
			}
		}
		if savePath != "" && (cur.QRCode != "" || cur.QRCodeImage != "") {
			if err := saveQRCode(savePath, cur); err != nil {
				fmt.Fprintf(out, "Warning: %v\n", err)
			} else {
				fmt.Fprintf(out, "QR code saved to %s\n", savePath)
			}
		}
	}
	if cur.PairingCode != "" && cur.PairingCode != prev.PairingCode {
		fmt.Fprintf(out, "Pairing code: %s\n", cur.PairingCode)
	}
	if cur.ErrorMessage != "" && cur.ErrorMessage != prev.ErrorMessage {
		fmt.Fprintln(out, cur.ErrorMessage)
	}
	if cur.HasQRCode() && !prev.HasQRCode() {
		fmt.Fprintln(out, "Waiting for the phone to connect...")
	}
	return cur
}

// saveQRCode writes the relay's PNG when it sent a data URI, otherwise it
// encodes the raw code locally.
func saveQRCode(path string, s wizard.Session) error {
	const prefix = "data:image/png;base64,"
	if strings.HasPrefix(s.QRCodeImage, prefix) {
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s.QRCodeImage, prefix))
		if err != nil {
			return fmt.Errorf("failed to decode QR image: %w", err)
		}
		return os.WriteFile(path, data, 0644)
	}
	if s.QRCode == "" {
		return fmt.Errorf("no QR code content to save")
	}
	return qrcode.WriteFile(s.QRCode, qrcode.Medium, 320, path)
}
