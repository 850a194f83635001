package store

import (
	"context"
	"time"

	"github.com/joescharf/issues/internal/models"
)

// IssueFilter specifies exact-match conditions for Find.
// Nil fields are not constrained; set fields are combined with AND.
type IssueFilter struct {
	ID         *string
	IssueTitle *string
	IssueText  *string
	CreatedBy  *string
	AssignedTo *string
	StatusText *string
	Open       *bool
	CreatedOn  *time.Time
	UpdatedOn  *time.Time
}

// IssueUpdate is a partial update applied by UpdateOne.
// Nil fields are left untouched; UpdatedOn is always written.
type IssueUpdate struct {
	IssueTitle *string
	IssueText  *string
	CreatedBy  *string
	AssignedTo *string
	StatusText *string
	Open       *bool
	UpdatedOn  time.Time
}

// Store is the document store behind the issue tracker. Every method is
// scoped to a project, which maps to an independent collection.
type Store interface {
	// Find returns the issues matching filter in insertion order.
	Find(ctx context.Context, project string, filter IssueFilter) ([]*models.Issue, error)
	// InsertOne stores issue and sets its ID.
	InsertOne(ctx context.Context, project string, issue *models.Issue) error
	// UpdateOne applies update to the issue with the given id and reports whether it matched.
	UpdateOne(ctx context.Context, project, id string, update IssueUpdate) (bool, error)
	// DeleteOne removes the issue with the given id and reports whether it existed.
	DeleteOne(ctx context.Context, project, id string) (bool, error)
	// Projects lists the names of projects holding issues.
	Projects(ctx context.Context) ([]string, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
