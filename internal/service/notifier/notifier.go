// Package notifier implements at-least-once webhook delivery of job
// notifications. The notifier is a pure delivery mechanism: it never touches
// job records, and always reports exhausted retries to its caller instead of
// swallowing them.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/voiceloop/gatehouse/internal/errors"

	"github.com/voiceloop/gatehouse/internal/backoff"
	"github.com/voiceloop/gatehouse/internal/core"
	"github.com/voiceloop/gatehouse/internal/domain/model"
	"github.com/voiceloop/gatehouse/internal/observability/statsd"
)

const maxResponseBodyBytes = 4 * 1024 // drain but never retain large bodies

// Options configures the webhook notifier.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// WebhookNotifier delivers notifications to a job's callback target over HTTP.
type WebhookNotifier struct {
	http    *http.Client
	logger  *slog.Logger
	metrics statsd.Sink
}

var _ core.CallbackNotifier = (*WebhookNotifier)(nil)

// New constructs a WebhookNotifier.
func New(opts Options) *WebhookNotifier {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "callback_notifier")
	}
	return &WebhookNotifier{
		http:    hc,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Notify delivers n to target, retrying per policy. Any 2xx acknowledgment
// counts as delivered. Retry waits are cancellable through ctx: when the
// parent job is cancelled mid-window, outstanding retries for stale gate
// notifications stop immediately.
func (w *WebhookNotifier) Notify(
	ctx context.Context,
	target string,
	n model.Notification,
	policy model.RetryPolicy,
) error {
	if err := policy.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid retry policy")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	strategy := backoff.ForPolicy(policy)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = w.deliver(ctx, target, body)
		if lastErr == nil {
			w.count("notifier.delivered", n)
			return nil
		}

		w.logger.WarnContext(ctx, "notification delivery attempt failed",
			"job_id", n.JobID,
			"gate_index", n.GateIndex,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"error", lastErr,
		)

		if attempt == policy.MaxAttempts {
			break
		}
		if waitErr := w.wait(ctx, strategy.Delay(attempt)); waitErr != nil {
			w.count("notifier.abandoned", n)
			return apperrors.Wrap(waitErr, apperrors.ErrCodeCanceled, "notification delivery abandoned")
		}
	}

	w.count("notifier.exhausted", n)
	return apperrors.Delivery(
		fmt.Sprintf("notification delivery to %s exhausted %d attempts", target, policy.MaxAttempts),
		lastErr,
	)
}

func (w *WebhookNotifier) deliver(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// wait sleeps for d unless ctx is done first.
func (w *WebhookNotifier) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *WebhookNotifier) count(name string, n model.Notification) {
	if w.metrics == nil {
		return
	}
	w.metrics.Count(name, 1, map[string]string{"status": string(n.Status)})
}
