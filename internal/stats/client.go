// Package stats is a read-only client for the ranked stats REST backend,
// with a small TTL response cache.
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deyoyk/RankedBedwarsV2/internal/config"
)

// PlayerRecord is one player's ranked standing.
type PlayerRecord struct {
	IGN         string `json:"ign"`
	Elo         int    `json:"elo"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
	Winstreak   int    `json:"winstreak"`
	GamesPlayed int    `json:"games_played"`
}

// LeaderboardEntry is one row of a leaderboard page.
type LeaderboardEntry struct {
	Position int    `json:"position"`
	IGN      string `json:"ign"`
	Elo      int    `json:"elo"`
}

type cacheEntry struct {
	body []byte
	at   time.Time
}

// Client queries the stats backend. Responses are cached per request URL for
// the configured TTL.
type Client struct {
	baseURL string
	ttl     time.Duration
	http    *http.Client
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates a stats client from configuration.
//
// Precondition: logger must be non-nil.
func New(cfg config.StatsAPIConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		ttl:     cfg.CacheTTL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
		cache:   make(map[string]cacheEntry),
	}
}

// User fetches a player's ranked record. A backend that has no data for the
// player answers with a literal "NaN" body; that maps to a zero-valued
// record rather than an error.
func (c *Client) User(ctx context.Context, ign string) (PlayerRecord, error) {
	u := c.baseURL + "/user?ign=" + url.QueryEscape(ign)
	body, err := c.get(ctx, u)
	if err != nil {
		return PlayerRecord{}, err
	}
	if isNaN(body) {
		return PlayerRecord{IGN: ign}, nil
	}
	var rec PlayerRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return PlayerRecord{}, fmt.Errorf("decoding user response: %w", err)
	}
	return rec, nil
}

// Leaderboard fetches one page of the named leaderboard.
func (c *Client) Leaderboard(ctx context.Context, mode string, page int) ([]LeaderboardEntry, error) {
	u := c.baseURL + "/leaderboard?mode=" + url.QueryEscape(mode) + "&page=" + strconv.Itoa(page)
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if isNaN(body) {
		return []LeaderboardEntry{}, nil
	}
	var entries []LeaderboardEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding leaderboard response: %w", err)
	}
	return entries, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	c.mu.Lock()
	if entry, ok := c.cache[u]; ok && time.Since(entry.at) < c.ttl {
		c.mu.Unlock()
		return entry.body, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building stats request: %w", err)
	}
	c.logger.Debug("stats cache miss", zap.String("url", u))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying stats backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats backend returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading stats response: %w", err)
	}

	c.mu.Lock()
	c.cache[u] = cacheEntry{body: body, at: time.Now()}
	c.mu.Unlock()
	return body, nil
}

func isNaN(body []byte) bool {
	return bytes.Equal(bytes.TrimSpace(body), []byte("NaN"))
}
