// internal/market/pricing.go
package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// PriceClient fetches USD quotes from the external price API. One request
// can cover many symbols, which is what the position monitor relies on.
type PriceClient struct {
	client *resty.Client
	logger *zap.Logger
}

type priceResponse struct {
	Data map[string]TokenPrice `json:"data"`
}

func NewPriceClient(baseURL string, logger *zap.Logger) *PriceClient {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &PriceClient{
		client: client,
		logger: logger.Named("price_client"),
	}
}

// Prices returns quotes for the given symbols in one call. Symbols the API
// does not know are simply absent from the result; callers decide whether
// that is an error.
func (c *PriceClient) Prices(ctx context.Context, symbols []string) (map[string]TokenPrice, error) {
	if len(symbols) == 0 {
		return map[string]TokenPrice{}, nil
	}

	var result priceResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(symbols, ",")).
		SetResult(&result).
		Get("/price")
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("price request returned %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Debug("Fetched prices",
		zap.Int("requested", len(symbols)),
		zap.Int("returned", len(result.Data)))

	return result.Data, nil
}
