package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/metrics"
)

// DeliveryError indicates an incident or report failed to reach its
// sink. Deliveries are fire-and-forget: the error is logged locally,
// never retried, and never blocks the recording that produced it.
type DeliveryError struct {
	Kind string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering %s: %v", e.Kind, e.Err)
}
func (e *DeliveryError) Unwrap() error { return e.Err }

// Notifier posts incidents and reports to remote sinks.
type Notifier struct {
	client      *http.Client
	incidentURL string
	reportURL   string
	userID      string
	logger      *slog.Logger
}

// NewNotifier creates a notifier. Empty sink URLs disable the
// corresponding delivery.
func NewNotifier(incidentURL, reportURL, userID string, logger *slog.Logger) *Notifier {
	return &Notifier{
		client:      &http.Client{Timeout: 10 * time.Second},
		incidentURL: incidentURL,
		reportURL:   reportURL,
		userID:      userID,
		logger:      logger,
	}
}

type incidentPayload struct {
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Domain    string    `json:"domain,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliverIncident posts one incident to the incident sink.
func (n *Notifier) DeliverIncident(ctx context.Context, inc *api.Incident) {
	if n.incidentURL == "" {
		return
	}
	payload := incidentPayload{
		UserID:    n.userID,
		Type:      string(inc.Type),
		Domain:    inc.Domain,
		Reason:    inc.Reason,
		Severity:  string(inc.Severity),
		Timestamp: inc.Timestamp,
	}
	n.post(ctx, "incident", n.incidentURL, payload)
}

type reportPayload struct {
	UserID          string               `json:"userId"`
	Period          api.ReportPeriod     `json:"period"`
	Summary         *api.Report          `json:"summary"`
	Recommendations []api.Recommendation `json:"recommendations"`
}

// DeliverReport posts one report to the report sink.
func (n *Notifier) DeliverReport(ctx context.Context, r *api.Report) {
	if n.reportURL == "" {
		return
	}
	payload := reportPayload{
		UserID:          n.userID,
		Period:          r.Period,
		Summary:         r,
		Recommendations: r.Recommendations,
	}
	n.post(ctx, "report", n.reportURL, payload)
}

func (n *Notifier) post(ctx context.Context, kind, url string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("delivery failed", "error", &DeliveryError{Kind: kind, Err: err})
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("delivery failed", "error", &DeliveryError{Kind: kind, Err: err})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.DeliveryFailures.WithLabelValues(kind).Inc()
		n.logger.Error("delivery failed", "error", &DeliveryError{Kind: kind, Err: err})
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.DeliveryFailures.WithLabelValues(kind).Inc()
		n.logger.Error("delivery failed", "error", &DeliveryError{
			Kind: kind,
			Err:  fmt.Errorf("sink returned status %d", resp.StatusCode),
		})
	}
}
