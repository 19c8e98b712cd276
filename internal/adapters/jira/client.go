/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/rs/zerolog"
)

const maxAttempts = 3

// Client talks to the Jira REST, Agile and Greenhopper APIs. It never writes.
type Client struct {
	baseURL string
	token   string
	user    string
	pass    string
	http    *http.Client
	log     zerolog.Logger
	apiVer  string
	backoff time.Duration
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.JiraBaseURL,
		token:   cfg.JiraPAT,
		user:    cfg.JiraUsername,
		pass:    cfg.JiraPassword,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		log:     log,
		apiVer:  cfg.JiraAPIVersion,
		backoff: 300 * time.Millisecond,
	}
}

// StatusError is a non-2xx answer from Jira.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira api status=%d body=%s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := base + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	return u
}

func (c *Client) restPath(suffix string) string {
	if c.apiVer == "2" {
		return "/rest/api/2" + suffix
	}
	return "/rest/api/3" + suffix
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.user != "" && c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}

// doJSON performs the request and decodes the response into out, retrying 429 and 5xx
// with exponential backoff.
func (c *Client) doJSON(ctx context.Context, method, u string, body any, out any) error {
	if c.baseURL == "" {
		return errors.New("jira: empty baseURL")
	}
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		err := c.once(ctx, method, u, payload, out)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt+1).Str("url", u).Msg("jira request failed")
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, u string, payload []byte, out any) error {
	var r io.Reader
	if payload != nil {
		r = strings.NewReader(string(payload))
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SearchPage is one page of a JQL search. Issues stay raw so the parse step can
// pattern-match the serialized form.
type SearchPage struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	Issues     []json.RawMessage `json:"issues"`
}

// Search runs a JQL query page with all fields, optionally expanding e.g. "changelog".
func (c *Client) Search(ctx context.Context, jql string, startAt, max int, expand string) (SearchPage, error) {
	var page SearchPage
	if strings.TrimSpace(jql) == "" {
		return page, errors.New("jira: empty jql")
	}
	if c.apiVer == "2" {
		q := url.Values{}
		q.Set("jql", jql)
		if startAt > 0 {
			q.Set("startAt", strconv.Itoa(startAt))
		}
		if max > 0 {
			q.Set("maxResults", strconv.Itoa(max))
		}
		q.Set("fields", "*all")
		if expand != "" {
			q.Set("expand", expand)
		}
		err := c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/api/2/search", q), nil, &page)
		return page, err
	}
	body := map[string]any{"jql": jql, "startAt": startAt, "maxResults": max, "fields": []string{"*all"}}
	if expand != "" {
		body["expand"] = strings.Split(expand, ",")
	}
	err := c.doJSON(ctx, http.MethodPost, c.apiURL("/rest/api/3/search", nil), body, &page)
	return page, err
}

// ChangelogPage is one page of /issue/{key}/changelog.
type ChangelogPage struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	IsLast     bool         `json:"isLast"`
	Values     []rawHistory `json:"values"`
	Histories  []rawHistory `json:"histories"`
}

// Changelog pages through an issue's history beyond what the search expand returned.
func (c *Client) Changelog(ctx context.Context, key string, startAt, max int) (ChangelogPage, error) {
	var page ChangelogPage
	if key == "" {
		return page, errors.New("jira: empty issue key")
	}
	q := url.Values{}
	if startAt > 0 {
		q.Set("startAt", strconv.Itoa(startAt))
	}
	if max > 0 {
		q.Set("maxResults", strconv.Itoa(max))
	}
	u := c.apiURL(c.restPath("/issue/"+url.PathEscape(key)+"/changelog"), q)
	err := c.doJSON(ctx, http.MethodGet, u, nil, &page)
	if len(page.Values) == 0 {
		page.Values = page.Histories
	}
	return page, err
}

type rawSprint struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`
	OriginBoardID int64  `json:"originBoardId"`
	StartDate     string `json:"startDate"`
	CompleteDate  string `json:"completeDate"`
}

func (r rawSprint) toDomain() (domain.Sprint, error) {
	s := domain.Sprint{ID: strconv.FormatInt(r.ID, 10), Name: r.Name, BoardID: r.OriginBoardID, State: r.State}
	var err error
	if r.StartDate != "" {
		if s.StartAt, err = ParseTime(r.StartDate); err != nil {
			return s, fmt.Errorf("sprint %d start: %w", r.ID, err)
		}
	}
	if r.CompleteDate != "" {
		if s.CompleteAt, err = ParseTime(r.CompleteDate); err != nil {
			return s, fmt.Errorf("sprint %d complete: %w", r.ID, err)
		}
	}
	return s, nil
}

// Sprint fetches sprint metadata by id.
func (c *Client) Sprint(ctx context.Context, id string) (domain.Sprint, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return domain.Sprint{}, fmt.Errorf("jira: invalid sprint id %q", id)
	}
	var raw rawSprint
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/agile/1.0/sprint/"+id, nil), nil, &raw); err != nil {
		return domain.Sprint{}, err
	}
	return raw.toDomain()
}

// BoardSprints lists a board's sprints in the given state ("closed", "active", ...).
func (c *Client) BoardSprints(ctx context.Context, boardID int64, state string) ([]domain.Sprint, error) {
	if boardID <= 0 {
		return nil, errors.New("jira: invalid board id")
	}
	var out []domain.Sprint
	start := 0
	for {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(start))
		q.Set("maxResults", "50")
		if state != "" {
			q.Set("state", state)
		}
		var page struct {
			IsLast bool        `json:"isLast"`
			Values []rawSprint `json:"values"`
		}
		u := c.apiURL("/rest/agile/1.0/board/"+strconv.FormatInt(boardID, 10)+"/sprint", q)
		if err := c.doJSON(ctx, http.MethodGet, u, nil, &page); err != nil {
			return nil, err
		}
		for _, r := range page.Values {
			s, err := r.toDomain()
			if err != nil {
				c.log.Warn().Err(err).Int64("board", boardID).Msg("skipping sprint with bad dates")
				continue
			}
			out = append(out, s)
		}
		if page.IsLast || len(page.Values) < 50 {
			break
		}
		start += 50
	}
	return out, nil
}

// SprintScope returns the keys of every issue that was ever in scope of the sprint,
// according to the Greenhopper scope change report.
func (c *Client) SprintScope(ctx context.Context, boardID int64, sprintID string) ([]string, error) {
	q := url.Values{}
	q.Set("rapidViewId", strconv.FormatInt(boardID, 10))
	q.Set("sprintId", sprintID)
	var out struct {
		Changes map[string][]struct {
			Key string `json:"key"`
		} `json:"changes"`
	}
	u := c.apiURL("/rest/greenhopper/1.0/rapid/charts/scopechangeburndownchart", q)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var keys []string
	for _, changes := range out.Changes {
		for _, ch := range changes {
			if ch.Key == "" {
				continue
			}
			if _, ok := seen[ch.Key]; ok {
				continue
			}
			seen[ch.Key] = struct{}{}
			keys = append(keys, ch.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
