// internal/market/signals.go
package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SignalClient pulls the latest directional trade signals from the external
// signal-generation service.
type SignalClient struct {
	client *resty.Client
	logger *zap.Logger
}

type signalResponse struct {
	Signals []Signal `json:"signals"`
}

func NewSignalClient(baseURL string, logger *zap.Logger) *SignalClient {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &SignalClient{
		client: client,
		logger: logger.Named("signal_client"),
	}
}

// LatestSignals returns the current signal batch in feed order.
func (c *SignalClient) LatestSignals(ctx context.Context) ([]Signal, error) {
	var result signalResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/signals/latest")
	if err != nil {
		return nil, fmt.Errorf("signal request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("signal request returned %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Debug("Fetched signals", zap.Int("count", len(result.Signals)))
	return result.Signals, nil
}
