// internal/dex/client.go
// Package dex is the client for the external trigger-order API: it turns a
// trade intent into an unsigned order transaction and executes the signed
// result, reporting a definitive settlement outcome.
package dex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type Client struct {
	client *resty.Client
	logger *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(30 * time.Second)

	return &Client{
		client: client,
		logger: logger.Named("dex_client"),
	}
}

// CreateOrder builds an unsigned order transaction for the given intent.
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	var result CreateOrderResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/order/create")
	if err != nil {
		return nil, fmt.Errorf("create order request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("create order returned %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Transaction == "" || result.RequestID == "" {
		return nil, fmt.Errorf("create order response missing transaction or request id")
	}

	c.logger.Debug("Order created",
		zap.String("request_id", result.RequestID),
		zap.String("input_mint", req.InputMint),
		zap.String("output_mint", req.OutputMint),
		zap.Int("slippage_bps", req.SlippageBps))

	return &result, nil
}

// Execute submits a signed order transaction. A non-success status from the
// API is returned as an error so callers see one definitive outcome.
func (c *Client) Execute(ctx context.Context, signedTxBase64, requestID string) (*ExecuteResponse, error) {
	var result ExecuteResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&executeRequest{
			SignedTransaction: signedTxBase64,
			RequestID:         requestID,
		}).
		SetResult(&result).
		Post("/order/execute")
	if err != nil {
		return nil, fmt.Errorf("execute request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("execute returned %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Status != executeStatusSuccess {
		return &result, fmt.Errorf("order execution failed: %s", result.Error)
	}

	c.logger.Info("Order executed",
		zap.String("request_id", requestID),
		zap.String("signature", result.Signature))

	return &result, nil
}
