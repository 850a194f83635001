package tracker

import (
	"fmt"
	"strconv"

	"github.com/joescharf/issues/internal/models"
)

// CreateRequest holds the caller-supplied fields of a new issue.
type CreateRequest struct {
	IssueTitle string `json:"issue_title"`
	IssueText  string `json:"issue_text"`
	CreatedBy  string `json:"created_by"`
	AssignedTo string `json:"assigned_to"`
	StatusText string `json:"status_text"`
}

// UpdateRequest is a partial update. A nil field was not provided by the caller.
type UpdateRequest struct {
	ID         string
	IssueTitle *string
	IssueText  *string
	CreatedBy  *string
	AssignedTo *string
	StatusText *string
	Open       *bool
}

// DeleteRequest identifies the issue to remove.
type DeleteRequest struct {
	ID string
}

// normalized drops empty values for fields that may never be blank.
func (r UpdateRequest) normalized() UpdateRequest {
	for _, f := range []**string{&r.IssueTitle, &r.IssueText, &r.CreatedBy} {
		if *f != nil && **f == "" {
			*f = nil
		}
	}
	return r
}

// HasChanges reports whether the request carries at least one field to update.
func (r UpdateRequest) HasChanges() bool {
	n := r.normalized()
	return n.IssueTitle != nil || n.IssueText != nil || n.CreatedBy != nil ||
		n.AssignedTo != nil || n.StatusText != nil || n.Open != nil
}

// Body is a loosely-typed request body, as decoded from JSON, a form or
// MCP tool arguments. Only the fields named in models are ever read from it.
type Body map[string]any

// str returns the value under key as a string and whether the key was present.
// Non-string scalars are formatted; nil counts as absent.
func (b Body) str(key string) (string, bool) {
	v, ok := b[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

func (b Body) strPtr(key string) *string {
	if v, ok := b.str(key); ok {
		return &v
	}
	return nil
}

// bool accepts JSON booleans as well as the strings "true" and "false".
func (b Body) bool(key string) *bool {
	v, ok := b[key]
	if !ok || v == nil {
		return nil
	}
	var out bool
	switch t := v.(type) {
	case bool:
		out = t
	case string:
		if t == "" {
			return nil
		}
		out = t == "true"
	default:
		return nil
	}
	return &out
}

// CreateRequestFromBody reads the creatable fields from b.
func CreateRequestFromBody(b Body) CreateRequest {
	var req CreateRequest
	req.IssueTitle, _ = b.str(models.FieldIssueTitle)
	req.IssueText, _ = b.str(models.FieldIssueText)
	req.CreatedBy, _ = b.str(models.FieldCreatedBy)
	req.AssignedTo, _ = b.str(models.FieldAssignedTo)
	req.StatusText, _ = b.str(models.FieldStatusText)
	return req
}

// UpdateRequestFromBody reads the identifier and the updatable fields from b.
// Keys outside the updatable set are ignored.
func UpdateRequestFromBody(b Body) UpdateRequest {
	id, _ := b.str(models.FieldID)
	return UpdateRequest{
		ID:         id,
		IssueTitle: b.strPtr(models.FieldIssueTitle),
		IssueText:  b.strPtr(models.FieldIssueText),
		CreatedBy:  b.strPtr(models.FieldCreatedBy),
		AssignedTo: b.strPtr(models.FieldAssignedTo),
		StatusText: b.strPtr(models.FieldStatusText),
		Open:       b.bool(models.FieldOpen),
	}
}

// DeleteRequestFromBody reads the identifier from b.
func DeleteRequestFromBody(b Body) DeleteRequest {
	id, _ := b.str(models.FieldID)
	return DeleteRequest{ID: id}
}
