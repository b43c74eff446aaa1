package indico

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

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the Indico instance used when none is configured
const DefaultBaseURL = "https://indico.cern.ch"

// DefaultFavoritesLimit caps the favourites listing when no limit is given
const DefaultFavoritesLimit = 100

const (
	defaultTimeout     = 30 * time.Second
	categoryEventLimit = 200
)

// Client is a read-only client for the Indico HTTP export API
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The caller is then
// responsible for attaching credentials.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the instance at baseURL authenticated with
// the given API token.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid Indico URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid Indico URL %q: missing scheme or host", baseURL)
	}

	c := &Client{
		baseURL: u,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
				Base:   http.DefaultTransport,
			},
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the instance root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// get performs an authenticated GET and decodes the JSON body into out
func (c *Client) get(ctx context.Context, resource, id, path string, query url.Values, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &NetworkError{Op: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("indico request")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Path: path, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Resource: resource, ID: id}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &NetworkError{Op: path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Op: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type exportResponse struct {
	Results []apiEvent `json:"results"`
}

func (c *Client) decodeEvents(items []apiEvent) ([]Event, error) {
	events := make([]Event, 0, len(items))
	for _, item := range items {
		ev, err := item.toEvent(c.baseURL)
		if err != nil {
			return nil, &NetworkError{Op: "parse event", Err: err}
		}
		events = append(events, ev)
	}
	return events, nil
}

// FavoriteEvents returns upcoming events from the user's favourite categories
func (c *Client) FavoriteEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultFavoritesLimit
	}
	q := url.Values{}
	q.Set("from", "today")
	q.Set("order", "start")
	q.Set("limit", strconv.Itoa(limit))

	var resp exportResponse
	if err := c.get(ctx, "favorites", "", "/export/categ/favorites.json", q, &resp); err != nil {
		return nil, err
	}
	return c.decodeEvents(resp.Results)
}

// ListFavorites returns the distinct categories of the favourite events in
// first-appearance order.
func (c *Client) ListFavorites(ctx context.Context) ([]Category, error) {
	events, err := c.FavoriteEvents(ctx, DefaultFavoritesLimit)
	if err != nil {
		return nil, err
	}
	return CategoriesOf(events), nil
}

// CategoriesOf collects the distinct categories of events in order of first
// appearance.
func CategoriesOf(events []Event) []Category {
	seen := make(map[string]bool)
	var cats []Category
	for _, ev := range events {
		if ev.CategoryID == "" || seen[ev.CategoryID] {
			continue
		}
		seen[ev.CategoryID] = true
		cats = append(cats, Category{ID: ev.CategoryID, Title: ev.Category, Path: ev.CategoryPath})
	}
	return cats
}

// ListEvents returns the events of a category inside the window
func (c *Client) ListEvents(ctx context.Context, cat Category, window Window) ([]Event, error) {
	if window.IsZero() {
		window = WindowAround(time.Now())
	}
	q := url.Values{}
	q.Set("from", window.From.Format(dateLayout))
	q.Set("to", window.To.Format(dateLayout))
	q.Set("order", "start")
	q.Set("limit", strconv.Itoa(categoryEventLimit))

	var resp exportResponse
	path := "/export/categ/" + url.PathEscape(cat.ID) + ".json"
	if err := c.get(ctx, "category", cat.ID, path, q, &resp); err != nil {
		return nil, err
	}
	events, err := c.decodeEvents(resp.Results)
	if err != nil {
		return nil, err
	}
	if len(cat.Path) > 0 {
		for i := range events {
			if events[i].CategoryID == cat.ID {
				events[i].CategoryPath = append([]string(nil), cat.Path...)
			}
		}
	}
	return events, nil
}

// FetchCategory returns a category with its parent and direct children
func (c *Client) FetchCategory(ctx context.Context, id string) (Category, error) {
	var info apiCategoryInfo
	path := "/category/" + url.PathEscape(id) + "/info"
	if err := c.get(ctx, "category", id, path, nil, &info); err != nil {
		return Category{}, err
	}
	return info.toCategory(id), nil
}

// FetchCategoryChildren returns the direct subcategories of cat
func (c *Client) FetchCategoryChildren(ctx context.Context, cat Category) ([]Category, error) {
	full, err := c.FetchCategory(ctx, cat.ID)
	if err != nil {
		return nil, err
	}
	return full.Children, nil
}

// Listing is everything needed to render one category
type Listing struct {
	Category Category
	Events   []Event
}

// Browse fetches category info and its events concurrently
func (c *Client) Browse(ctx context.Context, cat Category, window Window) (Listing, error) {
	g, gctx := errgroup.WithContext(ctx)

	var listing Listing
	g.Go(func() error {
		full, err := c.FetchCategory(gctx, cat.ID)
		if err != nil {
			return err
		}
		listing.Category = full
		return nil
	})

	var events []Event
	g.Go(func() error {
		var err error
		events, err = c.ListEvents(gctx, Category{ID: cat.ID}, window)
		return err
	})

	if err := g.Wait(); err != nil {
		return Listing{}, err
	}

	if len(listing.Category.Path) > 0 {
		for i := range events {
			if events[i].CategoryID == cat.ID {
				events[i].CategoryPath = append([]string(nil), listing.Category.Path...)
			}
		}
	}
	listing.Events = events
	return listing, nil
}

// Event fetches a single event by id
func (c *Client) Event(ctx context.Context, eventID string) (Event, error) {
	var resp exportResponse
	path := "/export/event/" + url.PathEscape(eventID) + ".json"
	if err := c.get(ctx, "event", eventID, path, nil, &resp); err != nil {
		return Event{}, err
	}
	if len(resp.Results) == 0 {
		return Event{}, &NotFoundError{Resource: "event", ID: eventID}
	}
	events, err := c.decodeEvents(resp.Results[:1])
	if err != nil {
		return Event{}, err
	}
	return events[0], nil
}

type timetableEntry struct {
	apiContribution
	Entries map[string]timetableEntry `json:"entries"`
}

type timetableResponse struct {
	Results map[string]map[string]map[string]timetableEntry `json:"results"`
}

// Timetable returns the contributions of an event sorted by start time.
// Session blocks are flattened into their entries.
func (c *Client) Timetable(ctx context.Context, eventID string) ([]Contribution, error) {
	var resp timetableResponse
	path := "/export/timetable/" + url.PathEscape(eventID) + ".json"
	if err := c.get(ctx, "event", eventID, path, nil, &resp); err != nil {
		return nil, err
	}

	var contribs []Contribution
	add := func(e timetableEntry) {
		if e.StartDate == nil {
			return
		}
		contrib, err := e.toContribution(c.baseURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("event", eventID).Msg("skipping timetable entry")
			return
		}
		contribs = append(contribs, contrib)
	}
	for _, days := range resp.Results[eventID] {
		for _, entry := range days {
			add(entry)
			for _, nested := range entry.Entries {
				add(nested)
			}
		}
	}
	sort.SliceStable(contribs, func(i, j int) bool {
		if contribs[i].Start.Equal(contribs[j].Start) {
			return contribs[i].Title < contribs[j].Title
		}
		return contribs[i].Start.Before(contribs[j].Start)
	})

	for _, contrib := range contribs {
		if len(contrib.Materials) == 0 {
			c.enrichMaterials(ctx, eventID, contribs)
			break
		}
	}
	return contribs, nil
}

// enrichMaterials fills missing materials from the event's contribution
// detail, matching by title. Failures are logged and ignored.
func (c *Client) enrichMaterials(ctx context.Context, eventID string, contribs []Contribution) {
	q := url.Values{}
	q.Set("detail", "contributions")

	var resp exportResponse
	path := "/export/event/" + url.PathEscape(eventID) + ".json"
	if err := c.get(ctx, "event", eventID, path, q, &resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Debug().Err(err).Str("event", eventID).Msg("material enrichment failed")
		}
		return
	}

	byTitle := make(map[string][]MaterialLink)
	for _, item := range resp.Results {
		for _, ac := range item.Contributions {
			if links := ac.materials(c.baseURL); len(links) > 0 {
				byTitle[ac.Title] = links
			}
		}
	}
	for i := range contribs {
		if len(contribs[i].Materials) == 0 {
			if links, ok := byTitle[contribs[i].Title]; ok {
				contribs[i].Materials = links
			}
		}
	}
}
