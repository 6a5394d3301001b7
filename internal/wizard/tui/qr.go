package tui

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// RenderQRCode draws content as a QR code using half-block characters, two
// modules per character row.
func RenderQRCode(content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("empty QR content")
	}

	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return strings.TrimRight(qr.ToSmallString(false), "\n"), nil
}
