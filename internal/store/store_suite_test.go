package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issues/internal/models"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newIssue(title, assignedTo string, open bool, at time.Time) *models.Issue {
	at = at.UTC().Truncate(time.Millisecond)
	return &models.Issue{
		IssueTitle: title,
		IssueText:  "text for " + title,
		CreatedBy:  "tdd",
		AssignedTo: assignedTo,
		Open:       open,
		CreatedOn:  at,
		UpdatedOn:  at,
	}
}

// testStoreConformance exercises the behavior every Store implementation must share.
func testStoreConformance(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 26, 53, 589_793_238, time.UTC)

	t.Run("insert assigns id and find returns insertion order", func(t *testing.T) {
		a := newIssue("first", "admin", true, base)
		b := newIssue("second", "", true, base.Add(time.Second))
		require.NoError(t, s.InsertOne(ctx, "order", a))
		require.NoError(t, s.InsertOne(ctx, "order", b))
		assert.NotEmpty(t, a.ID)
		assert.NotEqual(t, a.ID, b.ID)

		got, err := s.Find(ctx, "order", IssueFilter{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, a.ID, got[0].ID)
		assert.Equal(t, "first", got[0].IssueTitle)
		assert.Equal(t, "admin", got[0].AssignedTo)
		assert.True(t, got[0].Open)
		assert.True(t, a.CreatedOn.Equal(got[0].CreatedOn))
		assert.Equal(t, b.ID, got[1].ID)
	})

	t.Run("projects are isolated", func(t *testing.T) {
		require.NoError(t, s.InsertOne(ctx, "iso-a", newIssue("a", "", true, base)))
		require.NoError(t, s.InsertOne(ctx, "iso-b", newIssue("b", "", true, base)))

		got, err := s.Find(ctx, "iso-a", IssueFilter{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].IssueTitle)

		empty, err := s.Find(ctx, "iso-none", IssueFilter{})
		require.NoError(t, err)
		assert.Empty(t, empty)

		projects, err := s.Projects(ctx)
		require.NoError(t, err)
		assert.Contains(t, projects, "iso-a")
		assert.Contains(t, projects, "iso-b")
	})

	t.Run("filters combine with AND", func(t *testing.T) {
		open := newIssue("open-admin", "admin", true, base)
		closed := newIssue("closed-admin", "admin", false, base)
		other := newIssue("open-other", "joe", true, base.Add(time.Minute))
		for _, i := range []*models.Issue{open, closed, other} {
			require.NoError(t, s.InsertOne(ctx, "filters", i))
		}

		got, err := s.Find(ctx, "filters", IssueFilter{Open: boolPtr(true)})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = s.Find(ctx, "filters", IssueFilter{Open: boolPtr(true), AssignedTo: strPtr("admin")})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, open.ID, got[0].ID)

		got, err = s.Find(ctx, "filters", IssueFilter{ID: strPtr(closed.ID)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.False(t, got[0].Open)

		created := other.CreatedOn
		got, err = s.Find(ctx, "filters", IssueFilter{CreatedOn: &created})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, other.ID, got[0].ID)

		got, err = s.Find(ctx, "filters", IssueFilter{ID: strPtr("not-an-id")})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("update applies only set fields", func(t *testing.T) {
		issue := newIssue("update-me", "admin", false, base)
		require.NoError(t, s.InsertOne(ctx, "updates", issue))

		later := base.Add(time.Hour).Truncate(time.Millisecond)
		matched, err := s.UpdateOne(ctx, "updates", issue.ID, IssueUpdate{
			StatusText: strPtr("in QA"),
			Open:       boolPtr(true),
			UpdatedOn:  later,
		})
		require.NoError(t, err)
		assert.True(t, matched)

		got, err := s.Find(ctx, "updates", IssueFilter{ID: strPtr(issue.ID)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "update-me", got[0].IssueTitle)
		assert.Equal(t, "admin", got[0].AssignedTo)
		assert.Equal(t, "in QA", got[0].StatusText)
		assert.True(t, got[0].Open)
		assert.True(t, issue.CreatedOn.Equal(got[0].CreatedOn))
		assert.True(t, later.Equal(got[0].UpdatedOn))
	})

	t.Run("update and delete report misses", func(t *testing.T) {
		issue := newIssue("doomed", "", true, base)
		require.NoError(t, s.InsertOne(ctx, "misses", issue))

		matched, err := s.UpdateOne(ctx, "misses", "not-an-id", IssueUpdate{UpdatedOn: base})
		require.NoError(t, err)
		assert.False(t, matched)

		matched, err = s.UpdateOne(ctx, "elsewhere", issue.ID, IssueUpdate{UpdatedOn: base})
		require.NoError(t, err)
		assert.False(t, matched)

		deleted, err := s.DeleteOne(ctx, "misses", issue.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.DeleteOne(ctx, "misses", issue.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		got, err := s.Find(ctx, "misses", IssueFilter{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
