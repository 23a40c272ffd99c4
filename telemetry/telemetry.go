// Package telemetry reports flow failures to the identity provider and
// provides tracing helpers. Reporting is strictly best-effort: a failed
// report never affects the caller's own result.
package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/getkayan/walletkit/api"
	"github.com/getkayan/walletkit/logger"
)

// Reporter delivers one error report. The returned string, when
// non-empty, is a rotated session token the caller may adopt; server-side
// reporting endpoints can themselves rotate the session.
type Reporter interface {
	ReportError(ctx context.Context, session string, reported error) (string, error)
}

// APIReporter reports through the identity provider's telemetry endpoint.
type APIReporter struct {
	client *api.Client
	log    *zap.Logger
}

func NewAPIReporter(client *api.Client) *APIReporter {
	return &APIReporter{client: client, log: logger.Log.Named("telemetry")}
}

func (r *APIReporter) ReportError(ctx context.Context, session string, reported error) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rotated, err := r.client.ReportError(ctx, session, reported.Error())
	if err != nil {
		r.log.Debug("error report failed", zap.Error(err))
		return "", err
	}
	return rotated, nil
}

// Nop discards all reports.
type Nop struct{}

func (Nop) ReportError(context.Context, string, error) (string, error) { return "", nil }
