package queue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// snsPushEnvelope is the full SNS HTTP(S) delivery payload.
type snsPushEnvelope struct {
	Type         string `json:"Type"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

// Webhook adapts SNS push delivery to the same Handler used by the polling
// consumer: validate, handle, then acknowledge. With push delivery the
// acknowledgment is the HTTP status — 2xx consumes the notification, 5xx
// makes SNS redeliver, mirroring Ack/Retry.
type Webhook struct {
	handler Handler
	logger  *zap.Logger
	client  *http.Client
}

func NewWebhook(h Handler, logger *zap.Logger) *Webhook {
	return &Webhook{
		handler: h,
		logger:  logger,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Router mounts the webhook endpoint at path on a new chi router.
func (w *Webhook) Router(path string) chi.Router {
	r := chi.NewRouter()
	r.Post(path, w.ServeHTTP)
	return r
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, "unreadable request body")
		return
	}

	var env snsPushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeJSON(rw, http.StatusBadRequest, "malformed notification")
		return
	}

	switch env.Type {
	case "SubscriptionConfirmation":
		w.confirmSubscription(req.Context(), env.SubscribeURL)
		writeJSON(rw, http.StatusOK, "subscription confirmed")
	case "Notification":
		msg := Message{ID: uuid.NewString(), Body: []byte(env.Message)}
		disp, err := w.handler.Handle(req.Context(), msg)
		if err != nil {
			w.logger.Warn("Webhook handler error", zap.String("message_id", msg.ID), zap.Error(err))
		}
		if disp == Ack {
			writeJSON(rw, http.StatusOK, "processed")
			return
		}
		writeJSON(rw, http.StatusInternalServerError, "retry requested")
	default:
		writeJSON(rw, http.StatusOK, "ignored")
	}
}

// confirmSubscription completes the SNS topic handshake.
func (w *Webhook) confirmSubscription(ctx context.Context, subscribeURL string) {
	if subscribeURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, subscribeURL, nil)
	if err != nil {
		w.logger.Warn("Invalid SubscribeURL", zap.Error(err))
		return
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("Failed to confirm subscription", zap.Error(err))
		return
	}
	_ = resp.Body.Close()
	w.logger.Info("Confirmed topic subscription", zap.Int("status", resp.StatusCode))
}

func writeJSON(rw http.ResponseWriter, code int, message string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(map[string]any{"code": code, "message": message})
}
