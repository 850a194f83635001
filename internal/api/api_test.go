package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/store"
	"github.com/joescharf/issues/internal/tracker"
)

func setupTestServer(t *testing.T, opts ...tracker.Option) (http.Handler, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]tracker.Option{tracker.WithLogger(logger)}, opts...)
	srv := NewServer(tracker.NewService(s, opts...), logger)

	return srv.Router(), s
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createIssue(t *testing.T, router http.Handler, project, body string) models.Issue {
	t.Helper()
	w := do(t, router, "POST", "/api/issues/"+project, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.Issue](t, w)
}

func TestCreateIssue_EveryField(t *testing.T) {
	router, _ := setupTestServer(t)

	created := createIssue(t, router, "apitest",
		`{"issue_title":"Test title","issue_text":"placeholder text","created_by":"tdd","assigned_to":"admin","status_text":"in QA"}`)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Test title", created.IssueTitle)
	assert.Equal(t, "placeholder text", created.IssueText)
	assert.Equal(t, "tdd", created.CreatedBy)
	assert.Equal(t, "admin", created.AssignedTo)
	assert.Equal(t, "in QA", created.StatusText)
	assert.True(t, created.Open)
	assert.False(t, created.CreatedOn.IsZero())
	assert.True(t, created.CreatedOn.Equal(created.UpdatedOn))
}

func TestCreateIssue_RequiredFieldsOnly(t *testing.T) {
	router, _ := setupTestServer(t)

	created := createIssue(t, router, "apitest",
		`{"issue_title":"Test title","issue_text":"placeholder text","created_by":"tdd"}`)
	assert.Equal(t, "", created.AssignedTo)
	assert.Equal(t, "", created.StatusText)

	// Raw JSON keeps the original field names.
	w := do(t, router, "GET", "/api/issues/apitest", "")
	raw := decode[[]map[string]any](t, w)
	require.Len(t, raw, 1)
	for _, key := range []string{"_id", "issue_title", "issue_text", "created_by", "assigned_to", "status_text", "open", "created_on", "updated_on"} {
		assert.Contains(t, raw[0], key)
	}
}

func TestCreateIssue_MissingRequiredFields(t *testing.T) {
	router, _ := setupTestServer(t)

	w := do(t, router, "POST", "/api/issues/apitest", `{"created_by":"tdd"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]string{"error": "missing data"}, decode[map[string]string](t, w))

	w = do(t, router, "GET", "/api/issues/apitest", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.Issue](t, w))
}

func TestCreateIssue_InvalidJSON(t *testing.T) {
	router, _ := setupTestServer(t)

	w := do(t, router, "POST", "/api/issues/apitest", `{"issue_title":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid JSON", decode[map[string]string](t, w)["error"])
}

func TestCreateIssue_FormEncoded(t *testing.T) {
	router, _ := setupTestServer(t)

	form := url.Values{
		"issue_title": {"From form"},
		"issue_text":  {"body"},
		"created_by":  {"browser"},
		"assigned_to": {""},
	}
	req := httptest.NewRequest("POST", "/api/issues/apitest", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[models.Issue](t, w)
	assert.Equal(t, "From form", created.IssueTitle)
	assert.Equal(t, "", created.AssignedTo)
}

func TestListIssues(t *testing.T) {
	router, _ := setupTestServer(t)

	a := createIssue(t, router, "apitest", `{"issue_title":"a","issue_text":"a","created_by":"tdd","assigned_to":"admin"}`)
	createIssue(t, router, "apitest", `{"issue_title":"b","issue_text":"b","created_by":"tdd"}`)
	c := createIssue(t, router, "apitest", `{"issue_title":"c","issue_text":"c","created_by":"tdd","assigned_to":"admin"}`)
	createIssue(t, router, "elsewhere", `{"issue_title":"d","issue_text":"d","created_by":"tdd"}`)

	w := do(t, router, "PUT", "/api/issues/apitest", `{"_id":"`+c.ID+`","open":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("all", func(t *testing.T) {
		w := do(t, router, "GET", "/api/issues/apitest", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]models.Issue](t, w), 3)
	})

	t.Run("one filter", func(t *testing.T) {
		w := do(t, router, "GET", "/api/issues/apitest?open=true", "")
		assert.Equal(t, http.StatusOK, w.Code)
		issues := decode[[]models.Issue](t, w)
		require.Len(t, issues, 2)
		for _, i := range issues {
			assert.True(t, i.Open)
		}
	})

	t.Run("multiple filters", func(t *testing.T) {
		w := do(t, router, "GET", "/api/issues/apitest?open=true&assigned_to=admin", "")
		assert.Equal(t, http.StatusOK, w.Code)
		issues := decode[[]models.Issue](t, w)
		require.Len(t, issues, 1)
		assert.Equal(t, a.ID, issues[0].ID)
		assert.True(t, issues[0].Open)
		assert.Equal(t, "admin", issues[0].AssignedTo)
	})

	t.Run("empty project is an empty array", func(t *testing.T) {
		w := do(t, router, "GET", "/api/issues/nothing-here", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]\n", w.Body.String())
	})
}

func TestUpdateIssue(t *testing.T) {
	router, _ := setupTestServer(t)
	created := createIssue(t, router, "apitest", `{"issue_title":"a","issue_text":"a","created_by":"tdd"}`)

	t.Run("one field", func(t *testing.T) {
		w := do(t, router, "PUT", "/api/issues/apitest", `{"_id":"`+created.ID+`","issue_text":"new text"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tracker.Result{Result: "successfully updated", ID: created.ID}, decode[tracker.Result](t, w))
	})

	t.Run("multiple fields", func(t *testing.T) {
		w := do(t, router, "PUT", "/api/issues/apitest",
			`{"_id":"`+created.ID+`","issue_title":"renamed","status_text":"in QA","assigned_to":"joe"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "successfully updated", decode[tracker.Result](t, w).Result)

		w = do(t, router, "GET", "/api/issues/apitest?_id="+created.ID, "")
		issues := decode[[]models.Issue](t, w)
		require.Len(t, issues, 1)
		got := issues[0]
		assert.Equal(t, "renamed", got.IssueTitle)
		assert.Equal(t, "new text", got.IssueText)
		assert.Equal(t, "in QA", got.StatusText)
		assert.Equal(t, "joe", got.AssignedTo)
		assert.True(t, got.Open)
		assert.True(t, got.CreatedOn.Equal(created.CreatedOn))
		assert.False(t, got.UpdatedOn.Before(created.UpdatedOn))
	})

	t.Run("missing _id", func(t *testing.T) {
		w := do(t, router, "PUT", "/api/issues/apitest", `{"issue_title":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "missing _id", decode[map[string]string](t, w)["error"])
	})

	t.Run("no fields to update", func(t *testing.T) {
		w := do(t, router, "PUT", "/api/issues/apitest", `{"_id":"`+created.ID+`"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tracker.Result{Error: "no update field(s) sent", ID: created.ID}, decode[tracker.Result](t, w))
	})

	t.Run("unknown _id", func(t *testing.T) {
		w := do(t, router, "PUT", "/api/issues/apitest", `{"_id":"5f665eb46e296f6b9b6a504d","issue_text":"x"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tracker.Result{Error: "could not update", ID: "5f665eb46e296f6b9b6a504d"}, decode[tracker.Result](t, w))
	})
}

func TestUpdateIssue_EmptyValueJSONVersusForm(t *testing.T) {
	router, _ := setupTestServer(t)
	created := createIssue(t, router, "apitest",
		`{"issue_title":"a","issue_text":"a","created_by":"tdd","assigned_to":"admin","status_text":"in QA"}`)

	putForm := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest("PUT", "/api/issues/apitest", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}
	fetch := func() models.Issue {
		w := do(t, router, "GET", "/api/issues/apitest?_id="+created.ID, "")
		issues := decode[[]models.Issue](t, w)
		require.Len(t, issues, 1)
		return issues[0]
	}

	// An HTML form posts every input, so an empty form value is not an update.
	w := putForm(url.Values{"_id": {created.ID}, "assigned_to": {""}, "issue_title": {""}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tracker.Result{Error: "no update field(s) sent", ID: created.ID}, decode[tracker.Result](t, w))
	assert.Equal(t, "admin", fetch().AssignedTo)

	// An empty JSON value is explicit and clears an optional field.
	w = do(t, router, "PUT", "/api/issues/apitest", `{"_id":"`+created.ID+`","assigned_to":""}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tracker.Result{Result: "successfully updated", ID: created.ID}, decode[tracker.Result](t, w))
	got := fetch()
	assert.Equal(t, "", got.AssignedTo)
	assert.Equal(t, "in QA", got.StatusText)

	// Required fields can never be blanked, so an empty JSON title alone is a no-op.
	w = do(t, router, "PUT", "/api/issues/apitest", `{"_id":"`+created.ID+`","issue_title":""}`)
	assert.Equal(t, tracker.Result{Error: "no update field(s) sent", ID: created.ID}, decode[tracker.Result](t, w))
	assert.Equal(t, "a", fetch().IssueTitle)
}

func TestDeleteIssue(t *testing.T) {
	router, _ := setupTestServer(t)
	created := createIssue(t, router, "apitest", `{"issue_title":"a","issue_text":"a","created_by":"tdd"}`)

	w := do(t, router, "DELETE", "/api/issues/apitest", `{"_id":"`+created.ID+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tracker.Result{Result: "successfully deleted", ID: created.ID}, decode[tracker.Result](t, w))

	w = do(t, router, "DELETE", "/api/issues/apitest", `{"_id":"`+created.ID+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tracker.Result{Error: "could not delete", ID: created.ID}, decode[tracker.Result](t, w))

	w = do(t, router, "GET", "/api/issues/apitest", "")
	assert.Empty(t, decode[[]models.Issue](t, w))
}

func TestDeleteIssue_MissingID(t *testing.T) {
	router, _ := setupTestServer(t)

	w := do(t, router, "DELETE", "/api/issues/apitest", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing _id", decode[map[string]string](t, w)["error"])
}

func TestDeleteIssue_StrictNotFound(t *testing.T) {
	router, _ := setupTestServer(t, tracker.WithStrictDelete(true))

	w := do(t, router, "DELETE", "/api/issues/apitest", `{"_id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, tracker.Result{Error: "invalid _id", ID: "nope"}, decode[tracker.Result](t, w))
}

func TestStorageFailure(t *testing.T) {
	router, s := setupTestServer(t)
	require.NoError(t, s.Close())

	w := do(t, router, "GET", "/api/issues/apitest", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "server error", decode[map[string]string](t, w)["error"])

	w = do(t, router, "POST", "/api/issues/apitest", `{"issue_title":"a","issue_text":"a","created_by":"tdd"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(t, router, "GET", "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListProjects(t *testing.T) {
	router, _ := setupTestServer(t)

	w := do(t, router, "GET", "/api/projects", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	createIssue(t, router, "zeta", `{"issue_title":"a","issue_text":"a","created_by":"tdd"}`)
	createIssue(t, router, "alpha", `{"issue_title":"a","issue_text":"a","created_by":"tdd"}`)

	w = do(t, router, "GET", "/api/projects", "")
	assert.Equal(t, []string{"alpha", "zeta"}, decode[[]string](t, w))
}

func TestHealth(t *testing.T) {
	router, _ := setupTestServer(t)

	w := do(t, router, "GET", "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestCORSPreflight(t *testing.T) {
	router, _ := setupTestServer(t)

	w := do(t, router, "OPTIONS", "/api/issues/apitest", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
