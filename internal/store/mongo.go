package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/joescharf/issues/internal/models"
)

// issueDocument is the BSON shape of an issue. Each project is its own collection.
type issueDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	IssueTitle string             `bson:"issue_title"`
	IssueText  string             `bson:"issue_text"`
	CreatedBy  string             `bson:"created_by"`
	AssignedTo string             `bson:"assigned_to"`
	StatusText string             `bson:"status_text"`
	Open       bool               `bson:"open"`
	CreatedOn  time.Time          `bson:"created_on"`
	UpdatedOn  time.Time          `bson:"updated_on"`
}

func (d *issueDocument) toModel() *models.Issue {
	return &models.Issue{
		ID:         d.ID.Hex(),
		IssueTitle: d.IssueTitle,
		IssueText:  d.IssueText,
		CreatedBy:  d.CreatedBy,
		AssignedTo: d.AssignedTo,
		StatusText: d.StatusText,
		Open:       d.Open,
		CreatedOn:  d.CreatedOn.UTC(),
		UpdatedOn:  d.UpdatedOn.UTC(),
	}
}

// MongoStore implements Store on top of a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to uri and verifies the connection with a ping.
// A single attempt is made; the caller decides what a failure means.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// Migrate is a no-op: collections are created on first insert.
func (s *MongoStore) Migrate(_ context.Context) error {
	return nil
}

// Ping verifies the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// objectID parses a hex identifier. Malformed identifiers cannot match any
// document, so callers treat !ok as "no match" rather than an error.
func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

// --- Issues ---

func (s *MongoStore) Find(ctx context.Context, project string, filter IssueFilter) ([]*models.Issue, error) {
	query := bson.D{}
	if filter.ID != nil {
		oid, ok := objectID(*filter.ID)
		if !ok {
			return nil, nil
		}
		query = append(query, bson.E{Key: "_id", Value: oid})
	}

	addString := func(key string, v *string) {
		if v != nil {
			query = append(query, bson.E{Key: key, Value: *v})
		}
	}
	addString(models.FieldIssueTitle, filter.IssueTitle)
	addString(models.FieldIssueText, filter.IssueText)
	addString(models.FieldCreatedBy, filter.CreatedBy)
	addString(models.FieldAssignedTo, filter.AssignedTo)
	addString(models.FieldStatusText, filter.StatusText)
	if filter.Open != nil {
		query = append(query, bson.E{Key: models.FieldOpen, Value: *filter.Open})
	}
	if filter.CreatedOn != nil {
		query = append(query, bson.E{Key: models.FieldCreatedOn, Value: filter.CreatedOn.UTC()})
	}
	if filter.UpdatedOn != nil {
		query = append(query, bson.E{Key: models.FieldUpdatedOn, Value: filter.UpdatedOn.UTC()})
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.db.Collection(project).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}

	var docs []issueDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}

	var issues []*models.Issue
	for i := range docs {
		issues = append(issues, docs[i].toModel())
	}
	return issues, nil
}

func (s *MongoStore) InsertOne(ctx context.Context, project string, issue *models.Issue) error {
	doc := issueDocument{
		IssueTitle: issue.IssueTitle,
		IssueText:  issue.IssueText,
		CreatedBy:  issue.CreatedBy,
		AssignedTo: issue.AssignedTo,
		StatusText: issue.StatusText,
		Open:       issue.Open,
		CreatedOn:  issue.CreatedOn.UTC(),
		UpdatedOn:  issue.UpdatedOn.UTC(),
	}
	res, err := s.db.Collection(project).InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("insert issue: unexpected id type %T", res.InsertedID)
	}
	issue.ID = oid.Hex()
	return nil
}

func (s *MongoStore) UpdateOne(ctx context.Context, project, id string, update IssueUpdate) (bool, error) {
	oid, ok := objectID(id)
	if !ok {
		return false, nil
	}

	set := bson.D{{Key: models.FieldUpdatedOn, Value: update.UpdatedOn.UTC()}}
	setString := func(key string, v *string) {
		if v != nil {
			set = append(set, bson.E{Key: key, Value: *v})
		}
	}
	setString(models.FieldIssueTitle, update.IssueTitle)
	setString(models.FieldIssueText, update.IssueText)
	setString(models.FieldCreatedBy, update.CreatedBy)
	setString(models.FieldAssignedTo, update.AssignedTo)
	setString(models.FieldStatusText, update.StatusText)
	if update.Open != nil {
		set = append(set, bson.E{Key: models.FieldOpen, Value: *update.Open})
	}

	res, err := s.db.Collection(project).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return false, fmt.Errorf("update issue: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, project, id string) (bool, error) {
	oid, ok := objectID(id)
	if !ok {
		return false, nil
	}
	res, err := s.db.Collection(project).DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return false, fmt.Errorf("delete issue: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) Projects(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
