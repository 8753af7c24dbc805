package lizzysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Lizzy HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for the API served at baseURL under /v0.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Minute,
	}
}

// Project is the project summary (partial).
type Project struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
	Counts   struct {
		Characters int `json:"characters"`
		Scenes     int `json:"scenes"`
		Drafts     int `json:"drafts"`
		Finalized  int `json:"finalized"`
	} `json:"counts"`
}

// Character is one cast member. Name is required when saving.
type Character struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
	Goals       string `json:"goals,omitempty"`
	Conflicts   string `json:"conflicts,omitempty"`
	Backstory   string `json:"backstory,omitempty"`
}

// Scene is one outlined scene.
type Scene struct {
	Act       int    `json:"act"`
	Scene     int    `json:"scene"`
	Title     string `json:"title,omitempty"`
	Location  string `json:"location,omitempty"`
	TimeOfDay string `json:"time_of_day,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
	Beat      string `json:"beat,omitempty"`
}

// Coverage reports brainstorm buckets per outlined scene.
type Coverage struct {
	Table  string `json:"table"`
	Scenes []struct {
		Act     int            `json:"act"`
		Scene   int            `json:"scene"`
		Title   string         `json:"title"`
		Buckets map[string]int `json:"buckets"`
	} `json:"scenes"`
	Missing []struct {
		Act   int `json:"act"`
		Scene int `json:"scene"`
	} `json:"missing"`
}

type Draft struct {
	ID        int64  `json:"id"`
	Act       int    `json:"act"`
	Scene     int    `json:"scene"`
	DraftID   string `json:"draft_id"`
	Text      string `json:"draft_text"`
	Version   int    `json:"version"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type Final struct {
	Act       int    `json:"act"`
	Scene     int    `json:"scene"`
	Text      string `json:"final_text"`
	Notes     string `json:"notes"`
	CreatedAt string `json:"created_at"`
}

// SceneReport is the outcome of one scene in a write run.
type SceneReport struct {
	Act          int    `json:"act"`
	Scene        int    `json:"scene"`
	Title        string `json:"title"`
	OK           bool   `json:"ok"`
	Error        string `json:"error"`
	DraftVersion int    `json:"draft_version"`
	Words        int    `json:"words"`
}

type ExportResult struct {
	Dir    string   `json:"dir"`
	Files  []string `json:"files"`
	Scenes int      `json:"scenes"`
}

// WriteSummary is returned by Write.
type WriteSummary struct {
	State           string        `json:"state"`
	RunTable        string        `json:"run_table"`
	BrainstormTable string        `json:"brainstorm_table"`
	OutlineScenes   int           `json:"outline_scenes"`
	Attempted       int           `json:"attempted"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Scenes          []SceneReport `json:"scenes"`
	Export          *ExportResult `json:"export"`
}

// WriteOptions restricts a write run. Scenes are "act:scene".
type WriteOptions struct {
	Scenes     []string `json:"scenes,omitempty"`
	SkipExport bool     `json:"skip_export,omitempty"`
	ExportDir  string   `json:"export_dir,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Project returns the project summary.
func (c *Client) Project(ctx context.Context) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "project", nil, &resp)
	return resp, err
}

// Outline returns the scene outline in story order.
func (c *Client) Outline(ctx context.Context) ([]Scene, error) {
	var resp struct {
		Items []Scene `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "outline", nil, &resp)
	return resp.Items, err
}

func (c *Client) Characters(ctx context.Context) ([]Character, error) {
	var resp struct {
		Items []Character `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "characters", nil, &resp)
	return resp.Items, err
}

// SaveCharacter creates the character or replaces the one with the same name.
func (c *Client) SaveCharacter(ctx context.Context, ch Character) (Character, error) {
	var resp Character
	err := c.do(ctx, http.MethodPost, "characters", ch, &resp)
	return resp, err
}

func (c *Client) DeleteCharacter(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "characters/"+url.PathEscape(name), nil, nil)
}

// SaveScene creates or replaces the outline scene at s.Act, s.Scene.
func (c *Client) SaveScene(ctx context.Context, s Scene) (Scene, error) {
	var resp Scene
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("outline/%d/%d", s.Act, s.Scene), sceneBody(s), &resp)
	return resp, err
}

// DeleteScene removes an outline scene. Its drafts and final text are kept.
func (c *Client) DeleteScene(ctx context.Context, act, scene int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("outline/%d/%d", act, scene), nil, nil)
}

func sceneBody(s Scene) map[string]string {
	return map[string]string{
		"title":       s.Title,
		"location":    s.Location,
		"time_of_day": s.TimeOfDay,
		"purpose":     s.Purpose,
		"beat":        s.Beat,
	}
}

func (c *Client) Coverage(ctx context.Context) (Coverage, error) {
	var resp Coverage
	err := c.do(ctx, http.MethodGet, "coverage", nil, &resp)
	return resp, err
}

// Write runs the write pipeline and blocks until it finishes.
func (c *Client) Write(ctx context.Context, opts WriteOptions) (WriteSummary, error) {
	var resp WriteSummary
	err := c.do(ctx, http.MethodPost, "write", opts, &resp)
	return resp, err
}

// Drafts lists drafts in story order. Zero act or scene means any.
func (c *Client) Drafts(ctx context.Context, act, scene, limit int) ([]Draft, error) {
	q := url.Values{}
	if act > 0 {
		q.Set("act", strconv.Itoa(act))
	}
	if scene > 0 {
		q.Set("scene", strconv.Itoa(scene))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Items []Draft `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("drafts", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) Finals(ctx context.Context) ([]Final, error) {
	var resp struct {
		Items []Final `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "finals", nil, &resp)
	return resp.Items, err
}

func (c *Client) Final(ctx context.Context, act, scene int) (Final, error) {
	var resp Final
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("finals/%d/%d", act, scene), nil, &resp)
	return resp, err
}

// Export compiles finalized scenes. An empty dir uses the server default.
func (c *Client) Export(ctx context.Context, dir string) (ExportResult, error) {
	var resp ExportResult
	err := c.do(ctx, http.MethodPost, "export", map[string]any{"dir": dir}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
