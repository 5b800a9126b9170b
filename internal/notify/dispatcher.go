package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"payment-webhook-service/internal/config"
)

const (
	defaultTimeoutMs   = 10_000
	defaultParallelism = 100
)

// Message is one outbound customer notification, delivered after the domain
// transaction commits.
type Message struct {
	Type          string    `json:"type"`
	PaymentID     string    `json:"paymentId"`
	AppointmentID string    `json:"appointmentId,omitempty"`
	CorrelationID string    `json:"correlationId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

const TypeAppointmentConfirmed = "appointment_confirmed"

// Dispatcher posts notification messages to the configured endpoint with
// bounded concurrency. Delivery is fire-and-forget: failures are logged and
// counted, never surfaced to the webhook request.
type Dispatcher struct {
	client *http.Client
	url    string
	sem    chan struct{}
	logger *slog.Logger
}

func NewDispatcher(cfg config.Notifier, logger *slog.Logger) *Dispatcher {
	timeout := cfg.TimeoutMs
	if timeout <= 0 {
		timeout = defaultTimeoutMs
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	return &Dispatcher{
		client: &http.Client{Timeout: time.Duration(timeout) * time.Millisecond},
		url:    cfg.URL,
		sem:    make(chan struct{}, parallelism),
		logger: logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	if d.url == "" {
		return
	}

	d.sem <- struct{}{}
	go func() {
		defer func() { <-d.sem }()

		// decoupled from the request lifecycle
		sendCtx, cancel := context.WithTimeout(context.Background(), d.client.Timeout)
		defer cancel()

		if err := d.send(sendCtx, msg); err != nil {
			d.logger.Error("Error delivering notification",
				"type", msg.Type,
				"paymentId", msg.PaymentID,
				"correlationId", msg.CorrelationID,
				"error", err,
			)
		}
	}()
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.ReadAll(resp.Body); err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("error response: %s", resp.Status)
	}

	d.logger.Debug("Notification delivered", "type", msg.Type, "paymentId", msg.PaymentID)
	return nil
}
