// Package bet issues the outbound bet-placement request and feeds both
// ends of the reconciliation cycle: the optimistic entry at placement
// time and, when the response carries positions, the confirmed values
// ahead of the next poll.
package bet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"betflow/config"
	"betflow/internal/position"
	"betflow/logger"
	"betflow/models"
)

const defaultTimeout = 10 * time.Second

// Ticket describes one bet to place.
type Ticket struct {
	MatchID      string                  `json:"match_id"`
	MarketID     string                  `json:"market_id"`
	Category     models.PositionCategory `json:"category"`
	Selection    interface{}             `json:"selection_id"`
	FancyLabel   string                  `json:"fancy_label,omitempty"`
	Stake        float64                 `json:"stake"`
	Odds         float64                 `json:"odds"`
	PredictedNet float64                 `json:"predicted_net"`
}

// placeResponse is the collaborator's answer. The positions field is
// optional; when present it is the fastest path to confirmed values.
type placeResponse struct {
	Success   bool                       `json:"success"`
	Message   string                     `json:"message"`
	Positions *models.PositionCategories `json:"positions"`
}

type Client struct {
	config *config.Config
	rec    *position.Reconciler
	client *http.Client
	log    *logger.Log
}

func NewClient(cfg *config.Config, rec *position.Reconciler) *Client {
	timeout := cfg.Bet.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		config: cfg,
		rec:    rec,
		client: &http.Client{Timeout: timeout},
		log:    logger.GetLogger(),
	}
}

// Place records the predicted position synchronously, then issues the
// request. The optimistic entry goes in before any network round trip so
// the merged view reflects the bet instantly; the backend corrects it on
// the next reconciliation pass either way.
func (c *Client) Place(ctx context.Context, t Ticket) error {
	log := c.log.WithComponent("bet_client").WithFields(logger.Fields{
		"match_id":  t.MatchID,
		"market_id": t.MarketID,
		"category":  string(t.Category),
	})

	switch t.Category {
	case models.CategoryFancy:
		c.rec.RecordOptimisticFancy(t.Selection, t.FancyLabel, t.PredictedNet)
	default:
		c.rec.RecordOptimistic(t.Category, t.Selection, t.PredictedNet)
	}

	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Bet.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("bet placement request failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithFields(logger.Fields{"status": resp.StatusCode}).Warn("bet placement rejected")
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pr placeResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !pr.Success {
		log.WithFields(logger.Fields{"message": pr.Message}).Warn("bet placement unsuccessful")
		return fmt.Errorf("placement unsuccessful: %s", pr.Message)
	}

	if pr.Positions != nil {
		c.rec.IngestBackend(*pr.Positions)
		log.Info("bet placed, positions seeded from response")
	} else {
		log.Info("bet placed")
	}
	return nil
}
