package deliveryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"driver-agent/internal/apperr"
	"driver-agent/internal/domain"
	"driver-agent/internal/logx"
)

// Client is the delivery backend gateway backed by plain HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     logx.Logger
}

// NewClient creates a delivery API client. The timeout bounds every call;
// requests are never left pending indefinitely.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, logger logx.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// ActiveNear fetches the broadcasts currently open near the location.
func (c *Client) ActiveNear(ctx context.Context, loc domain.Location) ([]domain.Broadcast, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", loc.Lat))
	q.Set("lng", fmt.Sprintf("%f", loc.Lng))

	var resp activeBroadcastsResponse
	if err := c.do(ctx, http.MethodGet, "/delivery/broadcast/active?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("delivery gateway: ActiveNear: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("delivery gateway: ActiveNear: %w: %s", apperr.ErrUnavailable, resp.Message)
	}

	out := make([]domain.Broadcast, 0, len(resp.Data.Broadcasts))
	for _, dto := range resp.Data.Broadcasts {
		if dto.DeliveryID == "" {
			continue
		}
		out = append(out, dto.toDomain())
	}
	return out, nil
}

// Accept claims the delivery for this driver. A response without explicit
// success is a failure: a timed-out accept is never assumed to have won.
func (c *Client) Accept(ctx context.Context, deliveryID string) error {
	if strings.TrimSpace(deliveryID) == "" {
		return apperr.ErrInvalid
	}

	var resp acceptResponse
	err := c.do(ctx, http.MethodPost, "/delivery/"+url.PathEscape(deliveryID)+"/accept", struct{}{}, &resp)
	if err != nil {
		return fmt.Errorf("delivery gateway: Accept: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("delivery gateway: Accept: %w: %s", apperr.ErrConflict, resp.Message)
	}
	return nil
}

// BroadcastStatus fetches the authoritative lifecycle state of one broadcast.
func (c *Client) BroadcastStatus(ctx context.Context, deliveryID string) (*BroadcastStatus, error) {
	if strings.TrimSpace(deliveryID) == "" {
		return nil, apperr.ErrInvalid
	}

	var resp broadcastStatusResponse
	err := c.do(ctx, http.MethodGet, "/delivery/"+url.PathEscape(deliveryID)+"/broadcast-status", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("delivery gateway: BroadcastStatus: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("delivery gateway: BroadcastStatus: %w: %s", apperr.ErrUnavailable, resp.Message)
	}
	return &BroadcastStatus{
		Status:        resp.Data.BroadcastStatus,
		IsExpired:     resp.Data.IsExpired,
		AssignedTo:    resp.Data.AssignedTo,
		CanBeAccepted: resp.Data.CanBeAccepted,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return fmt.Errorf("%w: request timed out", apperr.ErrUnavailable)
		}
		return fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("response body close failed", logx.Any("err", cerr))
		}
	}()

	if err := classifyStatus(resp.StatusCode); err != nil {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", apperr.ErrUnauthorized, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", apperr.ErrNotFound, code)
	case code == http.StatusConflict || code == http.StatusGone:
		return fmt.Errorf("%w: status %d", apperr.ErrConflict, code)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d", apperr.ErrInvalid, code)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: status %d", apperr.ErrUnavailable, code)
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}
