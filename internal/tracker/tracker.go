// Package tracker implements the issue operations behind the REST API,
// the CLI and the MCP tools: request validation, defaults and response
// shaping on top of a store.Store.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/store"
)

// Validation and infrastructure failures. Soft outcomes such as an unknown
// identifier are reported through Result instead.
var (
	ErrMissingProject = errors.New("missing project")
	ErrMissingData    = errors.New("missing data")
	ErrMissingID      = errors.New("missing _id")
	ErrInvalidID      = errors.New("invalid _id")
	ErrStorage        = errors.New("server error")
)

// Messages carried by Result.
const (
	MsgUpdated        = "successfully updated"
	MsgDeleted        = "successfully deleted"
	MsgNoUpdateFields = "no update field(s) sent"
	MsgCouldNotUpdate = "could not update"
	MsgCouldNotDelete = "could not delete"
)

// Result acknowledges an update or delete. Exactly one of Result and Error is set.
type Result struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	ID     string `json:"_id"`
}

// OK reports whether the operation changed something.
func (r Result) OK() bool { return r.Error == "" }

// Service performs issue operations against a store.
type Service struct {
	store        store.Store
	log          *slog.Logger
	now          func() time.Time
	strictDelete bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for storage failures and ignored filters.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the time source for created_on/updated_on.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStrictDelete makes deleting an unknown identifier a validation
// failure (ErrInvalidID) instead of a soft "could not delete" result.
func WithStrictDelete(strict bool) Option {
	return func(s *Service) { s.strictDelete = strict }
}

// NewService creates a Service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp returns the current time in the precision both stores keep.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Service) storageError(op, project string, err error) error {
	s.log.Error("storage operation failed", "op", op, "project", project, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// List returns the issues of project matching every filter parameter.
// The result is never nil.
func (s *Service) List(ctx context.Context, project string, params url.Values) ([]*models.Issue, error) {
	if project == "" {
		return nil, ErrMissingProject
	}

	filter, ok := s.parseFilter(params)
	if !ok {
		return []*models.Issue{}, nil
	}

	issues, err := s.store.Find(ctx, project, filter)
	if err != nil {
		return nil, s.storageError("find", project, err)
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	return issues, nil
}

// parseFilter maps query parameters onto a store filter. It returns false
// when a parameter can never match: an unparseable timestamp, or one with
// digits below the millisecond that stored timestamps never carry.
func (s *Service) parseFilter(params url.Values) (store.IssueFilter, bool) {
	var f store.IssueFilter

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := params.Get(key)
		switch key {
		case models.FieldID:
			f.ID = &v
		case models.FieldIssueTitle:
			f.IssueTitle = &v
		case models.FieldIssueText:
			f.IssueText = &v
		case models.FieldCreatedBy:
			f.CreatedBy = &v
		case models.FieldAssignedTo:
			f.AssignedTo = &v
		case models.FieldStatusText:
			f.StatusText = &v
		case models.FieldOpen:
			open := v == "true"
			f.Open = &open
		case models.FieldCreatedOn, models.FieldUpdatedOn:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				s.log.Debug("unparseable timestamp filter", "field", key, "value", v)
				return f, false
			}
			t = t.UTC()
			if !t.Equal(t.Truncate(time.Millisecond)) {
				s.log.Debug("timestamp filter finer than stored precision", "field", key, "value", v)
				return f, false
			}
			if key == models.FieldCreatedOn {
				f.CreatedOn = &t
			} else {
				f.UpdatedOn = &t
			}
		default:
			s.log.Debug("ignoring unknown filter field", "field", key)
		}
	}
	return f, true
}

// Create validates req and stores a new open issue.
func (s *Service) Create(ctx context.Context, project string, req CreateRequest) (*models.Issue, error) {
	if project == "" {
		return nil, ErrMissingProject
	}
	if req.IssueTitle == "" || req.IssueText == "" || req.CreatedBy == "" {
		return nil, ErrMissingData
	}

	now := s.timestamp()
	issue := &models.Issue{
		IssueTitle: req.IssueTitle,
		IssueText:  req.IssueText,
		CreatedBy:  req.CreatedBy,
		AssignedTo: req.AssignedTo,
		StatusText: req.StatusText,
		Open:       true,
		CreatedOn:  now,
		UpdatedOn:  now,
	}
	if err := s.store.InsertOne(ctx, project, issue); err != nil {
		return nil, s.storageError("insert", project, err)
	}
	return issue, nil
}

// Update applies the provided fields of req to an existing issue. Every
// update reopens the issue unless req sets Open explicitly.
func (s *Service) Update(ctx context.Context, project string, req UpdateRequest) (Result, error) {
	if project == "" {
		return Result{}, ErrMissingProject
	}
	if req.ID == "" {
		return Result{}, ErrMissingID
	}

	req = req.normalized()
	if !req.HasChanges() {
		return Result{Error: MsgNoUpdateFields, ID: req.ID}, nil
	}

	open := true
	update := store.IssueUpdate{
		IssueTitle: req.IssueTitle,
		IssueText:  req.IssueText,
		CreatedBy:  req.CreatedBy,
		AssignedTo: req.AssignedTo,
		StatusText: req.StatusText,
		Open:       &open,
		UpdatedOn:  s.timestamp(),
	}
	if req.Open != nil {
		update.Open = req.Open
	}

	matched, err := s.store.UpdateOne(ctx, project, req.ID, update)
	if err != nil {
		return Result{}, s.storageError("update", project, err)
	}
	if !matched {
		return Result{Error: MsgCouldNotUpdate, ID: req.ID}, nil
	}
	return Result{Result: MsgUpdated, ID: req.ID}, nil
}

// Delete removes an issue permanently.
func (s *Service) Delete(ctx context.Context, project string, req DeleteRequest) (Result, error) {
	if project == "" {
		return Result{}, ErrMissingProject
	}
	if req.ID == "" {
		return Result{}, ErrMissingID
	}

	deleted, err := s.store.DeleteOne(ctx, project, req.ID)
	if err != nil {
		return Result{}, s.storageError("delete", project, err)
	}
	if !deleted {
		if s.strictDelete {
			return Result{Error: ErrInvalidID.Error(), ID: req.ID}, ErrInvalidID
		}
		return Result{Error: MsgCouldNotDelete, ID: req.ID}, nil
	}
	return Result{Result: MsgDeleted, ID: req.ID}, nil
}

// Projects lists the projects that hold issues.
func (s *Service) Projects(ctx context.Context) ([]string, error) {
	projects, err := s.store.Projects(ctx)
	if err != nil {
		return nil, s.storageError("projects", "", err)
	}
	if projects == nil {
		projects = []string{}
	}
	return projects, nil
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
