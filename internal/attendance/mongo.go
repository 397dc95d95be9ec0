package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rollcall/internal/model"
	"rollcall/internal/store"
)

const attendanceCollection = "attendances"

type recordDoc struct {
	ID        string    `bson:"_id"`
	StudentID string    `bson:"student"`
	ClassID   string    `bson:"class"`
	Date      string    `bson:"date"`
	Status    string    `bson:"status"`
	MarkedBy  string    `bson:"markedBy"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d recordDoc) record() model.AttendanceRecord {
	return model.AttendanceRecord{
		ID:        d.ID,
		StudentID: d.StudentID,
		ClassID:   d.ClassID,
		Date:      d.Date,
		Status:    model.Status(d.Status),
		MarkedBy:  d.MarkedBy,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// MongoRepository stores attendance in a MongoDB collection with a unique
// {student, date} index.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates the repository and its indexes.
func NewMongoRepository(ctx context.Context, db *mongo.Database) (*MongoRepository, error) {
	coll := db.Collection(attendanceCollection)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "student", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("student_date_unique"),
		},
		{
			Keys:    bson.D{{Key: "class", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("class_date"),
		},
	})
	if err != nil {
		return nil, store.Classify(err)
	}
	return &MongoRepository{coll: coll}, nil
}

func (r *MongoRepository) Upsert(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	filter := bson.M{"student": rec.StudentID, "date": rec.Date}
	update := bson.M{
		"$set": bson.M{
			"class":     rec.ClassID,
			"status":    string(rec.Status),
			"markedBy":  rec.MarkedBy,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"_id":       rec.ID,
			"createdAt": now,
		},
	}
	// The filter is an equality match on the unique index, so the server retries an
	// upsert that loses an insert race instead of failing it (MongoDB 4.2+).
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc recordDoc
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return model.AttendanceRecord{}, store.Classify(err)
	}
	return doc.record(), nil
}

func (r *MongoRepository) ListByStudent(ctx context.Context, studentID string) ([]model.AttendanceRecord, error) {
	return r.find(ctx, bson.M{"student": studentID}, bson.D{{Key: "date", Value: -1}, {Key: "updatedAt", Value: -1}})
}

func (r *MongoRepository) ListByClassAndDate(ctx context.Context, classID, date string) ([]model.AttendanceRecord, error) {
	return r.find(ctx, bson.M{"class": classID, "date": date}, bson.D{{Key: "student", Value: 1}})
}

func (r *MongoRepository) ListByDate(ctx context.Context, date string, classIDs []string) ([]model.AttendanceRecord, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"date": date, "class": bson.M{"$in": classIDs}}, bson.D{{Key: "class", Value: 1}, {Key: "student", Value: 1}})
}

func (r *MongoRepository) DeleteByClass(ctx context.Context, classID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"class": classID})
	return store.Classify(err)
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M, sort bson.D) ([]model.AttendanceRecord, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, store.Classify(err)
	}
	defer cur.Close(ctx)

	var res []model.AttendanceRecord
	for cur.Next(ctx) {
		var doc recordDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, store.Classify(err)
		}
		res = append(res, doc.record())
	}
	if err := cur.Err(); err != nil {
		return nil, store.Classify(err)
	}
	return res, nil
}
