package mongodb

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/user"
)

var userSortFields = map[string]bool{
	"username": true, "name": true, "email": true, "role": true, "department": true, "created_at": true,
}

type userDoc struct {
	ID                 string     `bson:"_id"`
	Username           string     `bson:"username"`
	Name               string     `bson:"name"`
	Email              string     `bson:"email"`
	Role               string     `bson:"role"`
	Department         string     `bson:"department"`
	SupervisorEmail    string     `bson:"supervisor_email,omitempty"`
	PasswordHash       []byte     `bson:"password_hash"`
	MustChangePassword bool       `bson:"must_change_password"`
	IsActive           bool       `bson:"is_active"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
	LastLogin          *time.Time `bson:"last_login,omitempty"`
}

func toUserDoc(usr user.User) userDoc {
	d := userDoc{
		ID:                 usr.ID,
		Username:           usr.Username,
		Name:               usr.Name,
		Email:              usr.Email,
		Role:               string(usr.Role),
		Department:         usr.Department,
		SupervisorEmail:    usr.SupervisorEmail,
		PasswordHash:       usr.PasswordHash,
		MustChangePassword: usr.MustChangePassword,
		IsActive:           usr.IsActive,
		CreatedAt:          usr.CreatedAt.UTC(),
		UpdatedAt:          usr.UpdatedAt.UTC(),
	}
	if !usr.LastLogin.IsZero() {
		ll := usr.LastLogin.UTC()
		d.LastLogin = &ll
	}
	return d
}

func (d userDoc) user() user.User {
	usr := user.User{
		ID:                 d.ID,
		Username:           d.Username,
		Name:               d.Name,
		Email:              d.Email,
		Role:               user.Role(d.Role),
		Department:         d.Department,
		SupervisorEmail:    d.SupervisorEmail,
		PasswordHash:       d.PasswordHash,
		MustChangePassword: d.MustChangePassword,
		IsActive:           d.IsActive,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
	if d.LastLogin != nil {
		usr.LastLogin = d.LastLogin.UTC()
	}
	return usr
}

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *mongo.Database) user.Repository {
	return &userRepository{coll: db.Collection(usersCollection)}
}

// duplicateUserErr maps a duplicate key error to the field it collides on.
func duplicateUserErr(err error) error {
	if strings.Contains(err.Error(), "email") {
		return user.ErrEmailExists
	}
	return user.ErrUsernameExists
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	filter := bson.M{"$or": bson.A{bson.M{"username": username}, bson.M{"email": email}}}
	if len(excludedUsers) > 0 {
		ids := make(bson.A, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		filter["_id"] = bson.M{"$nin": ids}
	}

	var found userDoc
	err := repo.coll.FindOne(ctx, filter).Decode(&found)
	switch {
	case err == mongo.ErrNoDocuments:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking user uniqueness")
	case found.Username == username:
		return user.ErrUsernameExists
	default:
		return user.ErrEmailExists
	}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	if _, err := repo.coll.InsertOne(ctx, toUserDoc(usr)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, duplicateUserErr(err)
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var q bson.M
	switch {
	case filter.ID != "":
		q = bson.M{"_id": filter.ID}
	case filter.UsernameOrEmail != "":
		q = bson.M{"$or": bson.A{bson.M{"username": filter.UsernameOrEmail}, bson.M{"email": filter.UsernameOrEmail}}}
	default:
		return user.User{}, user.ErrNotFound
	}

	var d userDoc
	if err := repo.coll.FindOne(ctx, q).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return d.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	q := bson.M{}
	if filter.Search != "" {
		rgx := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		q["$or"] = bson.A{bson.M{"name": rgx}, bson.M{"username": rgx}, bson.M{"email": rgx}}
	}
	if filter.Role != "" {
		q["role"] = filter.Role
	}
	if filter.Department != "" {
		q["department"] = filter.Department
	}

	opts := options.Find().SetSort(sortDoc(ordering, userSortFields, bson.D{{Key: "username", Value: 1}}))
	cur, err := repo.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	docs := make([]userDoc, 0)
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}
	users := make([]user.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.user())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": usr.ID}, toUserDoc(usr))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, duplicateUserErr(err)
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if res.MatchedCount == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
