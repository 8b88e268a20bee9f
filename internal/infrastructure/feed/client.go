// Package feed reads account equity from the brokerage equity endpoint.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"unitfund-backend/internal/domain"
)

// Client polls a JSON endpoint returning {"equity": ..., "balance": ..., "timestamp": ...}.
type Client struct {
	URL    string
	APIKey string
	Client *http.Client
}

// Fetch returns the current reading. Every failure wraps ErrExternalFeedUnavailable;
// callers bound the wait through ctx.
func (c *Client) Fetch(ctx context.Context) (domain.EquityReading, error) {
	if c.URL == "" {
		return domain.EquityReading{}, fmt.Errorf("%w: feed url not configured", domain.ErrExternalFeedUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return domain.EquityReading{}, fmt.Errorf("%w: %v", domain.ErrExternalFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return domain.EquityReading{}, fmt.Errorf("%w: %v", domain.ErrExternalFeedUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.EquityReading{}, fmt.Errorf("%w: status %d", domain.ErrExternalFeedUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.EquityReading{}, fmt.Errorf("%w: %v", domain.ErrExternalFeedUnavailable, err)
	}
	return Decode(body)
}

// Decode parses a reading payload. The same shape is accepted on the push endpoint.
func Decode(body []byte) (domain.EquityReading, error) {
	var r struct {
		Equity    json.RawMessage `json:"equity"`
		Balance   json.RawMessage `json:"balance"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return domain.EquityReading{}, fmt.Errorf("%w: decode: %v", domain.ErrExternalFeedUnavailable, err)
	}
	if len(r.Equity) == 0 || string(r.Equity) == "null" {
		return domain.EquityReading{}, fmt.Errorf("%w: reading has no equity", domain.ErrExternalFeedUnavailable)
	}

	var out domain.EquityReading
	if err := out.Equity.UnmarshalJSON(r.Equity); err != nil {
		return domain.EquityReading{}, fmt.Errorf("%w: equity: %v", domain.ErrExternalFeedUnavailable, err)
	}
	if len(r.Balance) > 0 && string(r.Balance) != "null" {
		if err := out.Balance.UnmarshalJSON(r.Balance); err != nil {
			return domain.EquityReading{}, fmt.Errorf("%w: balance: %v", domain.ErrExternalFeedUnavailable, err)
		}
	} else {
		out.Balance = out.Equity
	}
	out.Timestamp = r.Timestamp
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	return out, nil
}
