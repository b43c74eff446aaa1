package indico

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seminarJSON = `{
	"id": "1234",
	"title": "Physics Seminar",
	"url": "https://indico.example/event/1234/",
	"startDate": {"date": "2024-03-01", "time": "10:00:00", "tz": "Europe/Zurich"},
	"endDate": {"date": "2024-03-01", "time": "11:00:00", "tz": "Europe/Zurich"},
	"timezone": "Europe/Zurich",
	"location": "CERN",
	"room": "500-1-001",
	"category": "Seminars",
	"categoryId": 72,
	"type": "simple_event",
	"description": "<p>Talk about <b>quarks</b></p><p>Second</p>",
	"folders": [{"title": "Slides", "attachments": [
		{"title": "slides.pdf", "download_url": "/event/1234/attachments/1/2/slides.pdf"}
	]}]
}`

const categoryInfoJSON = `{
	"category": {"id": 72, "title": "Seminars", "parent_path": [
		{"id": 0, "title": "Home"},
		{"id": 5, "title": "Physics"}
	]},
	"subcategories": [{"id": 80, "title": "Theory"}]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "secret")
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("defaults to CERN", func(t *testing.T) {
		client, err := NewClient("", "token")
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, client.BaseURL())
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		client, err := NewClient("https://indico.example/", "token")
		require.NoError(t, err)
		assert.Equal(t, "https://indico.example", client.BaseURL())
	})

	t.Run("rejects relative URL", func(t *testing.T) {
		_, err := NewClient("indico.example", "token")
		assert.Error(t, err)
	})
}

func TestFavoriteEvents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/export/categ/favorites.json", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "today", r.URL.Query().Get("from"))
		assert.Equal(t, "start", r.URL.Query().Get("order"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"results": [` + seminarJSON + `]}`))
	})

	events, err := client.FavoriteEvents(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "1234", ev.ID)
	assert.Equal(t, "Physics Seminar", ev.Title)
	assert.Equal(t, "72", ev.CategoryID)
	assert.Equal(t, []string{"Seminars"}, ev.CategoryPath)
	assert.Equal(t, "Europe/Zurich", ev.Timezone)
	assert.Equal(t, "CERN (500-1-001)", ev.FullLocation())
	assert.Equal(t, "Talk about quarks\nSecond", ev.PlainDescription())

	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	assert.True(t, ev.Start.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, zurich)))
	assert.Equal(t, "Europe/Zurich", ev.Start.Location().String())
	assert.Equal(t, time.Hour, ev.End.Sub(ev.Start))

	require.Len(t, ev.Materials, 1)
	assert.Equal(t, "slides.pdf", ev.Materials[0].Title)
	assert.Equal(t, client.BaseURL()+"/event/1234/attachments/1/2/slides.pdf", ev.Materials[0].URL)
}

func TestListFavorites(t *testing.T) {
	other := `{"id": 9, "title": "Colloquium", "categoryId": "13", "category": "Colloquia",
		"startDate": {"date": "2024-03-02", "time": "16:00:00", "tz": "UTC"},
		"endDate": {"date": "2024-03-02", "time": "17:00:00", "tz": "UTC"}}`

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [` + seminarJSON + `,` + other + `,` + seminarJSON + `]}`))
	})

	cats, err := client.ListFavorites(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "72", cats[0].ID)
	assert.Equal(t, "Seminars", cats[0].Title)
	assert.Equal(t, "13", cats[1].ID)
	assert.Equal(t, "Colloquia", cats[1].Title)
}

func TestListEvents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/export/categ/72.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2024-02-14", q.Get("from"))
		assert.Equal(t, "2024-04-14", q.Get("to"))
		assert.Equal(t, "200", q.Get("limit"))
		w.Write([]byte(`{"results": [` + seminarJSON + `]}`))
	})

	cat := Category{ID: "72", Title: "Seminars", Path: []string{"Home", "Physics", "Seminars"}}
	window := WindowAround(time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC))

	events, err := client.ListEvents(context.Background(), cat, window)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, cat.Path, events[0].CategoryPath)

	// the returned path must not alias the caller's slice
	events[0].CategoryPath[0] = "changed"
	assert.Equal(t, "Home", cat.Path[0])
}

func TestFetchCategory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/category/72/info", r.URL.Path)
		w.Write([]byte(categoryInfoJSON))
	})

	cat, err := client.FetchCategory(context.Background(), "72")
	require.NoError(t, err)
	assert.Equal(t, "72", cat.ID)
	assert.Equal(t, "Seminars", cat.Title)
	assert.Equal(t, "5", cat.ParentID)
	assert.Equal(t, "Physics", cat.ParentTitle)
	assert.True(t, cat.HasParent())
	assert.Equal(t, []string{"Home", "Physics", "Seminars"}, cat.Path)

	require.Len(t, cat.Children, 1)
	child := cat.Children[0]
	assert.Equal(t, "80", child.ID)
	assert.Equal(t, "72", child.ParentID)
	assert.Equal(t, []string{"Home", "Physics", "Seminars", "Theory"}, child.Path)

	children, err := client.FetchCategoryChildren(context.Background(), Category{ID: "72"})
	require.NoError(t, err)
	assert.Equal(t, cat.Children, children)
}

func TestBrowse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/category/72/info":
			w.Write([]byte(categoryInfoJSON))
		case "/export/categ/72.json":
			w.Write([]byte(`{"results": [` + seminarJSON + `]}`))
		default:
			http.NotFound(w, r)
		}
	})

	listing, err := client.Browse(context.Background(), Category{ID: "72"}, WindowAround(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "Seminars", listing.Category.Title)
	require.Len(t, listing.Events, 1)
	assert.Equal(t, []string{"Home", "Physics", "Seminars"}, listing.Events[0].CategoryPath)
}

func TestBrowseFailsWhenEitherRequestFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/category/72/info" {
			w.Write([]byte(categoryInfoJSON))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Browse(context.Background(), Category{ID: "72"}, WindowAround(time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestEvent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/export/event/1234.json":
			w.Write([]byte(`{"results": [` + seminarJSON + `]}`))
		default:
			w.Write([]byte(`{"results": []}`))
		}
	})

	ev, err := client.Event(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, "Physics Seminar", ev.Title)

	_, err = client.Event(context.Background(), "5678")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "event", nf.Resource)
	assert.Equal(t, "5678", nf.ID)
}

func TestTimetable(t *testing.T) {
	timetable := `{"results": {"1234": {"20240301": {
		"c1": {"title": "Talk B",
			"startDate": {"date": "2024-03-01", "time": "11:00:00", "tz": "UTC"},
			"endDate": {"date": "2024-03-01", "time": "11:30:00", "tz": "UTC"},
			"presenters": [{"name": "Ada Lovelace"}]},
		"s1": {"title": "Morning session", "entries": {
			"c2": {"title": "Talk A",
				"startDate": {"date": "2024-03-01", "time": "10:00:00", "tz": "UTC"},
				"endDate": {"date": "2024-03-01", "time": "10:30:00", "tz": "UTC"},
				"presenters": [{"first_name": "Alan", "last_name": "Turing"}]}
		}}
	}}}}`
	detail := `{"results": [{"id": 1234, "title": "Workshop",
		"startDate": {"date": "2024-03-01", "time": "09:00:00", "tz": "UTC"},
		"endDate": {"date": "2024-03-01", "time": "18:00:00", "tz": "UTC"},
		"contributions": [
			{"title": "Talk A", "attachments": {"files": [
				{"title": "talk-a.pdf", "download_url": "https://cdn.example/talk-a.pdf"}
			]}},
			{"title": "Talk B"}
		]}]}`

	var enriched bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/export/timetable/1234.json":
			w.Write([]byte(timetable))
		case "/export/event/1234.json":
			enriched = true
			assert.Equal(t, "contributions", r.URL.Query().Get("detail"))
			w.Write([]byte(detail))
		default:
			http.NotFound(w, r)
		}
	})

	contribs, err := client.Timetable(context.Background(), "1234")
	require.NoError(t, err)
	require.Len(t, contribs, 2)
	assert.True(t, enriched)

	assert.Equal(t, "Talk A", contribs[0].Title)
	assert.Equal(t, []string{"Alan Turing"}, contribs[0].Speakers)
	require.Len(t, contribs[0].Materials, 1)
	assert.Equal(t, "https://cdn.example/talk-a.pdf", contribs[0].Materials[0].URL)

	assert.Equal(t, "Talk B", contribs[1].Title)
	assert.Equal(t, []string{"Ada Lovelace"}, contribs[1].Speakers)
	assert.Empty(t, contribs[1].Materials)
}

func TestTimetableEnrichmentFailureIsIgnored(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/export/timetable/1234.json" {
			w.Write([]byte(`{"results": {"1234": {"20240301": {"c1": {"title": "Talk",
				"startDate": {"date": "2024-03-01", "time": "11:00", "tz": "UTC"},
				"endDate": {"date": "2024-03-01", "time": "11:30", "tz": "UTC"}}}}}}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	})

	contribs, err := client.Timetable(context.Background(), "1234")
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	assert.Equal(t, 11, contribs[0].Start.Hour())
}

func TestClientErrors(t *testing.T) {
	t.Run("invalid token", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.FavoriteEvents(context.Background(), 10)
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
		assert.ErrorIs(t, err, ErrAuth)
		assert.Contains(t, err.Error(), "invalid or expired")
	})

	t.Run("access denied", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		_, err := client.FetchCategory(context.Background(), "72")
		assert.ErrorIs(t, err, ErrAuth)
		assert.Equal(t, "access denied to /category/72/info", err.Error())
	})

	t.Run("missing category", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})

		_, err := client.ListEvents(context.Background(), Category{ID: "999"}, WindowAround(time.Now()))
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "category", nf.Resource)
		assert.Equal(t, "999", nf.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unexpected status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.FavoriteEvents(context.Background(), 10)
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, http.StatusServiceUnavailable, netErr.StatusCode)
	})

	t.Run("undecodable body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>maintenance</html>`))
		})

		_, err := client.FavoriteEvents(context.Background(), 10)
		assert.ErrorIs(t, err, ErrNetwork)
	})

	t.Run("transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		client, err := NewClient(url, "secret")
		require.NoError(t, err)

		_, err = client.FavoriteEvents(context.Background(), 10)
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Zero(t, netErr.StatusCode)
		assert.NotNil(t, errors.Unwrap(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"results": []}`))
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.FavoriteEvents(ctx, 10)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrNetwork)
	})
}

func TestWindowAround(t *testing.T) {
	w := WindowAround(time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC), w.To)
	assert.True(t, w.Contains(time.Date(2024, 4, 14, 23, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-02-14 .. 2024-04-14", w.String())
}
