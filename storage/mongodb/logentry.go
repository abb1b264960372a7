package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
)

var logSortFields = map[string]bool{"week_number": true, "submitted_at": true, "status": true}

type logDoc struct {
	ID                string    `bson:"_id"`
	StudentUsername   string    `bson:"student_username"`
	StudentName       string    `bson:"student_name"`
	StudentEmail      string    `bson:"student_email"`
	SupervisorEmail   string    `bson:"supervisor_email"`
	Department        string    `bson:"department"`
	WeekNumber        int       `bson:"week_number"`
	Content           string    `bson:"content"`
	Status            string    `bson:"status"`
	VerificationToken *string   `bson:"verification_token,omitempty"`
	SubmittedAt       time.Time `bson:"submitted_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func toLogDoc(le progress.LogEntry) logDoc {
	return logDoc{
		ID:                le.ID,
		StudentUsername:   le.StudentUsername,
		StudentName:       le.StudentName,
		StudentEmail:      le.StudentEmail,
		SupervisorEmail:   le.SupervisorEmail,
		Department:        le.Department,
		WeekNumber:        le.WeekNumber,
		Content:           le.Content,
		Status:            string(le.Status),
		VerificationToken: le.VerificationToken,
		SubmittedAt:       le.SubmittedAt.UTC(),
		UpdatedAt:         le.UpdatedAt.UTC(),
	}
}

func (d logDoc) entry() progress.LogEntry {
	return progress.LogEntry{
		ID:                d.ID,
		StudentUsername:   d.StudentUsername,
		StudentName:       d.StudentName,
		StudentEmail:      d.StudentEmail,
		SupervisorEmail:   d.SupervisorEmail,
		Department:        d.Department,
		WeekNumber:        d.WeekNumber,
		Content:           d.Content,
		Status:            progress.Status(d.Status),
		VerificationToken: d.VerificationToken,
		SubmittedAt:       d.SubmittedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

type logRepository struct {
	coll *mongo.Collection
}

var _ progress.Repository = (*logRepository)(nil) // interface compliance check

func NewLogRepository(db *mongo.Database) progress.Repository {
	return &logRepository{coll: db.Collection(logsCollection)}
}

func (repo logRepository) findOne(ctx context.Context, filter bson.M, msg string) (progress.LogEntry, error) {
	var d logDoc
	if err := repo.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return progress.LogEntry{}, progress.ErrNotFound
		}
		return progress.LogEntry{}, errors.Wrap(err, msg)
	}
	return d.entry(), nil
}

func (repo logRepository) InsertLog(ctx context.Context, le progress.LogEntry) (progress.LogEntry, error) {
	le.ID = uuid.New().String()
	le.VerificationToken = nil
	if _, err := repo.coll.InsertOne(ctx, toLogDoc(le)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return progress.LogEntry{}, progress.ErrDuplicateWeek
		}
		return progress.LogEntry{}, errors.Wrap(err, "inserting log")
	}
	return le, nil
}

func (repo logRepository) SetToken(ctx context.Context, id, token string) error {
	filter := bson.M{
		"_id":                id,
		"status":             progress.StatusPending.String(),
		"verification_token": bson.M{"$exists": false},
	}
	res, err := repo.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"verification_token": token}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return progress.ErrNotFound
		}
		return errors.Wrap(err, "setting token")
	}
	if res.MatchedCount == 0 {
		return progress.ErrNotFound
	}
	return nil
}

func (repo logRepository) FindByToken(ctx context.Context, token string) (progress.LogEntry, error) {
	return repo.findOne(ctx, bson.M{"verification_token": token}, "finding log by token")
}

func (repo logRepository) ResolveByToken(ctx context.Context, token string, status progress.Status) (progress.LogEntry, error) {
	filter := bson.M{"verification_token": token, "status": progress.StatusPending.String()}
	update := bson.M{
		"$set":   bson.M{"status": status.String(), "updated_at": time.Now().UTC()},
		"$unset": bson.M{"verification_token": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var d logDoc
	if err := repo.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return progress.LogEntry{}, progress.ErrNotFound
		}
		return progress.LogEntry{}, errors.Wrap(err, "resolving token")
	}
	return d.entry(), nil
}

func (repo logRepository) GetLog(ctx context.Context, id string) (progress.LogEntry, error) {
	return repo.findOne(ctx, bson.M{"_id": id}, "finding log")
}

func (repo logRepository) QueryLogs(ctx context.Context, filter progress.QueryFilter, ordering []core.DBOrdering) ([]progress.LogEntry, error) {
	q := bson.M{}
	if filter.StudentUsername != "" {
		q["student_username"] = filter.StudentUsername
	}
	if filter.Department != "" {
		q["department"] = filter.Department
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.WeekNumber != 0 {
		q["week_number"] = filter.WeekNumber
	}

	opts := options.Find().SetSort(sortDoc(ordering, logSortFields, bson.D{{Key: "week_number", Value: -1}}))
	cur, err := repo.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying logs")
	}
	docs := make([]logDoc, 0)
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding logs")
	}
	logs := make([]progress.LogEntry, 0, len(docs))
	for _, d := range docs {
		logs = append(logs, d.entry())
	}
	return logs, nil
}
