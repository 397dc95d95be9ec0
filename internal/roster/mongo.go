package roster

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rollcall/internal/model"
	"rollcall/internal/store"
)

type userDoc struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	Email           string    `bson:"email"`
	Password        string    `bson:"password"`
	Role            string    `bson:"role"`
	StudentID       string    `bson:"studentId,omitempty"`
	AssignedTeacher string    `bson:"assignedTeacher,omitempty"`
	CreatedAt       time.Time `bson:"createdAt"`
}

func (d userDoc) user() model.User {
	return model.User{
		ID:              d.ID,
		Name:            d.Name,
		Email:           d.Email,
		PasswordHash:    d.Password,
		Role:            model.RoleName(d.Role),
		StudentID:       d.StudentID,
		AssignedTeacher: d.AssignedTeacher,
		CreatedAt:       d.CreatedAt.UTC(),
	}
}

type classDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Teacher   string    `bson:"teacher"`
	Students  []string  `bson:"students"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d classDoc) class() model.Class {
	students := d.Students
	if students == nil {
		students = []string{}
	}
	return model.Class{
		ID:        d.ID,
		Name:      d.Name,
		TeacherID: d.Teacher,
		Students:  students,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// MongoStore keeps users and classes in MongoDB collections.
type MongoStore struct {
	users   *mongo.Collection
	classes *mongo.Collection
}

// NewMongoStore binds the collections and ensures their indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{users: db.Collection("users"), classes: db.Collection("classes")}
	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "assignedTeacher", Value: 1}}, Options: options.Index().SetName("role_teacher")},
	}); err != nil {
		return nil, store.Classify(err)
	}
	if _, err := s.classes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "teacher", Value: 1}},
		Options: options.Index().SetName("teacher"),
	}); err != nil {
		return nil, store.Classify(err)
	}
	return s, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = time.Now().UTC()
	doc := userDoc{
		ID: u.ID, Name: u.Name, Email: u.Email, Password: u.PasswordHash,
		Role: string(u.Role), StudentID: u.StudentID, CreatedAt: u.CreatedAt,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, errEmailTaken
		}
		return model.User{}, store.Classify(err)
	}
	return u, nil
}

func (s *MongoStore) UserByEmail(ctx context.Context, email string) (model.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, store.Classify(err)
	}
	return doc.user(), nil
}

func (s *MongoStore) UsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	docs, err := s.findUsers(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	found := make(map[string]model.User, len(docs))
	for _, u := range docs {
		found[u.ID] = u
	}
	out := make([]model.User, 0, len(found))
	for _, id := range ids {
		if u, ok := found[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *MongoStore) ListStudents(ctx context.Context, teacherID string) ([]model.User, error) {
	filter := bson.M{"role": string(model.RoleStudent)}
	if teacherID != "" {
		filter["assignedTeacher"] = teacherID
	}
	users, err := s.findUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortUsers(users)
	return users, nil
}

func (s *MongoStore) AssignStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	res, err := s.users.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": studentIDs}, "role": string(model.RoleStudent)},
		bson.M{"$set": bson.M{"assignedTeacher": teacherID}},
	)
	if err != nil {
		return 0, store.Classify(err)
	}
	return res.MatchedCount, nil
}

func (s *MongoStore) CreateClass(ctx context.Context, c model.Class) (model.Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc := classDoc{
		ID: c.ID, Name: c.Name, Teacher: c.TeacherID,
		Students: model.MergeStudents(nil, c.Students), CreatedAt: now, UpdatedAt: now,
	}
	if _, err := s.classes.InsertOne(ctx, doc); err != nil {
		return model.Class{}, store.Classify(err)
	}
	return doc.class(), nil
}

func (s *MongoStore) GetClass(ctx context.Context, id string) (model.Class, error) {
	var doc classDoc
	err := s.classes.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Class{}, model.ErrClassNotFound
	}
	if err != nil {
		return model.Class{}, store.Classify(err)
	}
	return doc.class(), nil
}

func (s *MongoStore) ListClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error) {
	cur, err := s.classes.Find(ctx, bson.M{"teacher": teacherID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, store.Classify(err)
	}
	defer cur.Close(ctx)

	out := make([]model.Class, 0)
	for cur.Next(ctx) {
		var doc classDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, store.Classify(err)
		}
		out = append(out, doc.class())
	}
	return out, store.Classify(cur.Err())
}

// AddStudents relies on $addToSet, which keeps the existing order and skips ids that
// are already enrolled.
func (s *MongoStore) AddStudents(ctx context.Context, classID string, studentIDs []string) (model.Class, error) {
	var doc classDoc
	err := s.classes.FindOneAndUpdate(ctx,
		bson.M{"_id": classID},
		bson.M{
			"$addToSet": bson.M{"students": bson.M{"$each": model.MergeStudents(nil, studentIDs)}},
			"$set":      bson.M{"updatedAt": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Class{}, model.ErrClassNotFound
	}
	if err != nil {
		return model.Class{}, store.Classify(err)
	}
	return doc.class(), nil
}

func (s *MongoStore) DeleteClass(ctx context.Context, id string) error {
	res, err := s.classes.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return store.Classify(err)
	}
	if res.DeletedCount == 0 {
		return model.ErrClassNotFound
	}
	return nil
}

func (s *MongoStore) findUsers(ctx context.Context, filter bson.M) ([]model.User, error) {
	cur, err := s.users.Find(ctx, filter)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer cur.Close(ctx)

	out := make([]model.User, 0)
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, store.Classify(err)
		}
		out = append(out, doc.user())
	}
	return out, store.Classify(cur.Err())
}
