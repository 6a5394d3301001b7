package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/muurk/evoconnect/internal/evolution"
	"github.com/muurk/evoconnect/internal/instance"
	"github.com/muurk/evoconnect/internal/logging"
	"go.uber.org/zap"
)

// Messages returned to callers. Remote messages take precedence over the
// per-operation defaults.
const (
	MsgMissingFields  = "Instance name and phone number are required"
	MsgNotConfigured  = "Evolution API configuration not found"
	MsgCreateFailed   = "Failed to create instance"
	MsgCreateInternal = "Internal error while creating instance"
	MsgQRCodeFailed   = "Failed to fetch QR code"
	MsgQRCodeInternal = "Internal error while fetching QR code"
	MsgStatusFailed   = "Failed to check status"
	MsgStatusInternal = "Internal error while checking status"
)

const maxRequestBodyBytes = 64 << 10

// operationMessages pairs the remote-failure and transport-failure messages
// of one relay operation.
type operationMessages struct {
	failed   string
	internal string
}

var messagesByOperation = map[string]operationMessages{
	evolution.OpCreate:          {MsgCreateFailed, MsgCreateInternal},
	evolution.OpConnect:         {MsgQRCodeFailed, MsgQRCodeInternal},
	evolution.OpConnectionState: {MsgStatusFailed, MsgStatusInternal},
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var draft instance.Draft
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&draft); err != nil && !errors.Is(err, io.EOF) {
		logging.Debug("Unreadable create body",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
	}

	if draft.InstanceName == "" || draft.PhoneNumber == "" {
		writeEnvelope(w, http.StatusBadRequest, failure(MsgMissingFields, nil))
		return
	}
	if !s.evolution.Configured() {
		s.notConfigured(w, r)
		return
	}

	resp, err := s.evolution.CreateInstance(r.Context(), instance.NewCreateRequest(draft))
	s.forward(w, r, evolution.OpCreate, resp, err)
}

func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("instanceName")
	if !s.evolution.Configured() {
		s.notConfigured(w, r)
		return
	}

	resp, err := s.evolution.Connect(r.Context(), name)
	s.forward(w, r, evolution.OpConnect, resp, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("instanceName")
	if !s.evolution.Configured() {
		s.notConfigured(w, r)
		return
	}

	resp, err := s.evolution.ConnectionState(r.Context(), name)
	s.forward(w, r, evolution.OpConnectionState, resp, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"configured": s.evolution.Configured(),
	})
}

func (s *Server) notConfigured(w http.ResponseWriter, r *http.Request) {
	logging.Error("Evolution API credentials missing",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
	)
	writeEnvelope(w, http.StatusInternalServerError, failure(MsgNotConfigured, nil))
}

// forward turns an Evolution API answer into a relay envelope. Success is
// always 200 with the remote body under data. A remote failure keeps its
// status code. Transport failures are logged and hidden behind a generic 500.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, op string, resp *evolution.Response, err error) {
	msgs := messagesByOperation[op]

	if err != nil {
		var evoErr *evolution.Error
		errType := "unknown"
		if errors.As(err, &evoErr) {
			errType = evoErr.Type.String()
		}
		s.metrics.remoteFailed(op, errType)

		logging.Error("Evolution API call failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("operation", op),
			zap.String("hint", evolution.GetShortErrorMessage(err)),
			zap.Error(err),
		)
		logging.Debug(evolution.GetTroubleshootingHint(err), zap.String("operation", op))
		writeEnvelope(w, http.StatusInternalServerError, failure(msgs.internal, nil))
		return
	}

	s.metrics.observeRemote(op, resp.Duration)

	if rejected := resp.Err(); rejected != nil {
		s.metrics.remoteFailed(op, evolution.ErrTypeHTTP.String())

		message := instance.RemoteMessage(resp.Body)
		if message == "" {
			message = msgs.failed
		}
		logging.Warn("Evolution API rejected request",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("operation", op),
			zap.Int("status_code", resp.StatusCode),
			zap.String("message", message),
			zap.Error(rejected),
		)
		writeEnvelope(w, resp.StatusCode, failure(message, rawJSON(resp.Body)))
		return
	}

	writeEnvelope(w, http.StatusOK, instance.Envelope{Success: true, Data: rawJSON(resp.Body)})
}

func failure(message string, detail json.RawMessage) instance.Envelope {
	return instance.Envelope{Success: false, Message: message, Error: detail}
}

// rawJSON returns a remote body ready to embed in an envelope. Bodies that
// are not JSON are embedded as a JSON string.
func rawJSON(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return quoted
}

func writeEnvelope(w http.ResponseWriter, status int, env instance.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logging.Error("Failed to encode envelope", zap.Error(err))
		http.Error(w, `{"success":false}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
