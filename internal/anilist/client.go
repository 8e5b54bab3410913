package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"anime-notifier/internal/models"
	"anime-notifier/internal/ratelimit"
	"anime-notifier/internal/timeutil"
)

const (
	defaultBaseURL  = "https://graphql.anilist.co"
	defaultTimeout  = 10 * time.Second
	requestInterval = time.Second // AniList throttles bursts; keep one request per second
	searchPageSize  = 10
)

// Client fetches airing schedules from the AniList GraphQL API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Sequencer
	now        timeutil.Clock
}

// SearchResult is a single show from a search query.
type SearchResult struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Episodes *int   `json:"episodes,omitempty"`
	Status   string `json:"status"`
}

// APIError is a non-successful AniList response. It unwraps to
// models.ErrNotFound or models.ErrUpstreamUnavailable.
type APIError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anilist API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// NewClient creates a new AniList client with the default rate limit.
func NewClient() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: ratelimit.NewSequencer(requestInterval),
		now:     timeutil.Now,
	}
}

// SetBaseURL allows overriding the base URL (useful for testing)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// SetLimiter replaces the request sequencer.
func (c *Client) SetLimiter(limiter *ratelimit.Sequencer) {
	c.limiter = limiter
}

// SetClock replaces the clock used to stamp FetchedAt.
func (c *Client) SetClock(clock timeutil.Clock) {
	c.now = timeutil.OrDefault(clock)
}

const mediaScheduleQuery = `
query ($id: Int) {
	Media(id: $id, type: ANIME) {
		id
		title { romaji english }
		episodes
		status
		coverImage { large }
		nextAiringEpisode { episode airingAt }
		siteUrl
	}
}`

const searchQuery = `
query ($search: String, $perPage: Int) {
	Page(page: 1, perPage: $perPage) {
		media(search: $search, type: ANIME, sort: SEARCH_MATCH) {
			id
			title { romaji english }
			episodes
			status
		}
	}
}`

type mediaTitle struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
}

func (t mediaTitle) preferred() string {
	if t.Romaji != "" {
		return t.Romaji
	}
	return t.English
}

type media struct {
	ID         int        `json:"id"`
	Title      mediaTitle `json:"title"`
	Episodes   *int       `json:"episodes"`
	Status     string     `json:"status"`
	CoverImage *struct {
		Large string `json:"large"`
	} `json:"coverImage"`
	NextAiringEpisode *struct {
		Episode  int   `json:"episode"`
		AiringAt int64 `json:"airingAt"`
	} `json:"nextAiringEpisode"`
	SiteURL string `json:"siteUrl"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// FetchSchedule returns the current schedule snapshot for a show.
func (c *Client) FetchSchedule(ctx context.Context, showID int) (*models.ScheduleSnapshot, error) {
	if showID <= 0 {
		return nil, fmt.Errorf("invalid show id %d: %w", showID, models.ErrNotFound)
	}

	var data struct {
		Media *media `json:"Media"`
	}
	if err := c.query(ctx, mediaScheduleQuery, map[string]any{"id": showID}, &data); err != nil {
		return nil, fmt.Errorf("fetch schedule for show %d: %w", showID, err)
	}
	if data.Media == nil {
		return nil, fmt.Errorf("show %d: %w", showID, models.ErrNotFound)
	}

	return c.toSnapshot(data.Media), nil
}

// SearchShows searches for anime by title.
func (c *Client) SearchShows(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}

	var data struct {
		Page struct {
			Media []media `json:"media"`
		} `json:"Page"`
	}
	vars := map[string]any{"search": query, "perPage": searchPageSize}
	if err := c.query(ctx, searchQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("search shows: %w", err)
	}

	results := make([]SearchResult, 0, len(data.Page.Media))
	for _, m := range data.Page.Media {
		results = append(results, SearchResult{
			ID:       m.ID,
			Title:    m.Title.preferred(),
			Episodes: m.Episodes,
			Status:   m.Status,
		})
	}
	return results, nil
}

func (c *Client) toSnapshot(m *media) *models.ScheduleSnapshot {
	snap := &models.ScheduleSnapshot{
		ShowID:        m.ID,
		Title:         m.Title.preferred(),
		TotalEpisodes: m.Episodes,
		Status:        m.Status,
		SiteURL:       m.SiteURL,
		FetchedAt:     c.now(),
	}
	if m.CoverImage != nil {
		snap.CoverImage = m.CoverImage.Large
	}
	if m.NextAiringEpisode != nil {
		episode := m.NextAiringEpisode.Episode
		airingAt := m.NextAiringEpisode.AiringAt
		snap.NextEpisodeNumber = &episode
		snap.NextEpisodeAiringAt = &airingAt
	}
	if snap.SiteURL == "" {
		snap.SiteURL = fmt.Sprintf("https://anilist.co/anime/%d", m.ID)
	}
	return snap
}

// query runs a GraphQL request and decodes the data member into out.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", errors.Join(err, models.ErrUpstreamUnavailable))
	}

	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", errors.Join(err, models.ErrUpstreamUnavailable))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to read response", kind: models.ErrUpstreamUnavailable}
	}

	var gql graphQLResponse
	decodeErr := json.Unmarshal(raw, &gql)

	if err := checkResponse(resp.StatusCode, raw, gql.Errors); err != nil {
		return err
	}
	if decodeErr != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "invalid response body", kind: models.ErrUpstreamUnavailable}
	}
	if len(gql.Data) == 0 || string(gql.Data) == "null" {
		return &APIError{StatusCode: resp.StatusCode, Message: "response has no data", kind: models.ErrUpstreamUnavailable}
	}
	if err := json.Unmarshal(gql.Data, out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to decode data: " + err.Error(), kind: models.ErrUpstreamUnavailable}
	}
	return nil
}

// checkResponse maps HTTP status and GraphQL errors onto the error taxonomy.
// AniList reports a missing Media as HTTP 404 with an error of status 404.
func checkResponse(statusCode int, raw []byte, gqlErrors []graphQLError) error {
	for _, e := range gqlErrors {
		if e.Status == http.StatusNotFound {
			return &APIError{StatusCode: http.StatusNotFound, Message: e.Message, kind: models.ErrNotFound}
		}
	}

	if statusCode == http.StatusNotFound {
		return &APIError{StatusCode: statusCode, Message: firstMessage(gqlErrors, raw), kind: models.ErrNotFound}
	}
	if statusCode < 200 || statusCode >= 300 {
		return &APIError{StatusCode: statusCode, Message: firstMessage(gqlErrors, raw), kind: models.ErrUpstreamUnavailable}
	}
	if len(gqlErrors) > 0 {
		return &APIError{StatusCode: statusCode, Message: gqlErrors[0].Message, kind: models.ErrUpstreamUnavailable}
	}
	return nil
}

func firstMessage(gqlErrors []graphQLError, raw []byte) string {
	if len(gqlErrors) > 0 && gqlErrors[0].Message != "" {
		return gqlErrors[0].Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "empty response"
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
