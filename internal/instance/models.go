package instance

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// Integration is the connector type requested for every new instance
	Integration = "WHATSAPP-BAILEYS"

	// StateOpen is the connection state reported once the phone is paired
	StateOpen = "open"

	// StateConnecting is reported while the instance waits for a scan
	StateConnecting = "connecting"

	// StateClose is reported for logged-out or never-paired instances
	StateClose = "close"
)

// Draft is the user input collected by the wizard form.
type Draft struct {
	InstanceName string `json:"instanceName"`
	PhoneNumber  string `json:"phoneNumber"`
}

// CreateRequest is the body the Evolution API expects on POST /instance/create.
type CreateRequest struct {
	InstanceName string `json:"instanceName"`
	Number       string `json:"number"`
	QRCode       bool   `json:"qrcode"`
	Integration  string `json:"integration"`
}

// NewCreateRequest maps a draft onto the remote create body.
func NewCreateRequest(d Draft) CreateRequest {
	return CreateRequest{
		InstanceName: d.InstanceName,
		Number:       d.PhoneNumber,
		QRCode:       true,
		Integration:  Integration,
	}
}

// Envelope is the response shape of every relay endpoint.
// Data and Error hold remote bodies verbatim.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// QRCode is the payload returned by GET /instance/connect/{name}.
// Depending on the remote version and instance settings any of the
// fields may be empty.
type QRCode struct {
	// Base64 is a data URI with a PNG rendering of the code
	Base64 string `json:"base64,omitempty"`
	// Code is the raw string encoded in the QR
	Code string `json:"code,omitempty"`
	// PairingCode is the alternative code typed on the phone
	PairingCode string `json:"pairingCode,omitempty"`
	// Count is how many codes the remote has generated for this session
	Count int `json:"count,omitempty"`
}

// Empty reports whether the payload carries nothing the user can act on.
func (q QRCode) Empty() bool {
	return q.Base64 == "" && q.Code == "" && q.PairingCode == ""
}

// ParseQRCode decodes the data field of a FetchQRCode envelope. Create
// responses nest the same object under "qrcode", which is accepted too.
func ParseQRCode(data json.RawMessage) (QRCode, error) {
	var qr QRCode
	if len(data) == 0 {
		return qr, fmt.Errorf("empty QR code payload")
	}
	if err := json.Unmarshal(data, &qr); err != nil {
		return qr, fmt.Errorf("failed to parse QR code payload: %w", err)
	}
	if qr.Empty() {
		var nested struct {
			QRCode *QRCode `json:"qrcode"`
		}
		if err := json.Unmarshal(data, &nested); err == nil && nested.QRCode != nil {
			qr = *nested.QRCode
		}
	}
	return qr, nil
}

// ConnectionStatus is the payload returned by GET /instance/connectionState/{name}.
type ConnectionStatus struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		State        string `json:"state"`
	} `json:"instance"`
}

// ParseConnectionState extracts instance.state from a FetchStatus data
// field. Older remotes answer with a flat {"state": ...} object.
func ParseConnectionState(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty connection state payload")
	}

	var status ConnectionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return "", fmt.Errorf("failed to parse connection state: %w", err)
	}
	if status.Instance.State != "" {
		return status.Instance.State, nil
	}

	var flat struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(data, &flat); err == nil && flat.State != "" {
		return flat.State, nil
	}

	return "", fmt.Errorf("connection state missing from payload")
}

// IsConnected reports whether a connection state means the phone is paired.
func IsConnected(state string) bool {
	return strings.EqualFold(state, StateOpen)
}

// RemoteMessage pulls a human readable message out of a remote error body.
// The Evolution API uses "message" as a string, an array of strings, or
// nests it under "response".
func RemoteMessage(body []byte) string {
	var probe struct {
		Message  json.RawMessage `json:"message"`
		Error    json.RawMessage `json:"error"`
		Response struct {
			Message json.RawMessage `json:"message"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}

	for _, raw := range []json.RawMessage{probe.Message, probe.Response.Message, probe.Error} {
		if msg := messageFromRaw(raw); msg != "" {
			return msg
		}
	}
	return ""
}

func messageFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if msg := messageFromRaw(item); msg != "" {
				return msg
			}
		}
	}
	return ""
}
