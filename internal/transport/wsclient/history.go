package wsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"theory-battle/internal/domain"
)

// HistoryClient reports finished battles to the relay's history API.
type HistoryClient struct {
	base string
	http *http.Client
}

// NewHistoryClient derives the API base from a relay websocket URL such as
// ws://host:8080/ws.
func NewHistoryClient(relayURL string) (*HistoryClient, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws")
	u.RawQuery = ""
	return &HistoryClient{
		base: strings.TrimSuffix(u.String(), "/") + "/api/v1",
		http: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (h *HistoryClient) RecordBattle(ctx context.Context, userID string, result domain.BattleResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	endpoint := h.base + "/users/" + url.PathEscape(userID) + "/battles"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("record battle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("record battle: unexpected status %d", resp.StatusCode)
	}
	return nil
}
