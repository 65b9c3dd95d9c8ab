package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
)

const collectionUsers = "users"

// UserRepository implements ports.UserRepository on a MongoDB collection.
type UserRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers), now: time.Now}
}

// mongoUser is the stored shape of a user. Active is a pointer so documents
// written without the field count as active.
type mongoUser struct {
	ID                          primitive.ObjectID `bson:"_id,omitempty"`
	Firstname                   string             `bson:"firstname"`
	Lastname                    string             `bson:"lastname"`
	Username                    string             `bson:"username"`
	Email                       string             `bson:"email"`
	BirthDate                   time.Time          `bson:"birthDate"`
	Password                    string             `bson:"password,omitempty"`
	Role                        string             `bson:"role"`
	Active                      *bool              `bson:"active,omitempty"`
	PasswordResetToken          string             `bson:"passwordResetToken,omitempty"`
	PasswordResetTokenExpiresIn *time.Time         `bson:"passwordResetTokenExpiresIn,omitempty"`
	EmailResetToken             string             `bson:"emailResetToken,omitempty"`
	EmailResetTokenExpiresIn    *time.Time         `bson:"emailResetTokenExpiresIn,omitempty"`
	CreatedAt                   time.Time          `bson:"createdAt"`
	UpdatedAt                   time.Time          `bson:"updatedAt"`
}

func toDocument(u *domain.User) mongoUser {
	active := u.Active
	role := u.Role
	if !role.Valid() {
		role = domain.RoleUser
	}
	return mongoUser{
		Firstname:                   u.Firstname,
		Lastname:                    u.Lastname,
		Username:                    u.Username,
		Email:                       u.Email,
		BirthDate:                   u.BirthDate,
		Password:                    u.PasswordHash,
		Role:                        string(role),
		Active:                      &active,
		PasswordResetToken:          u.PasswordResetToken,
		PasswordResetTokenExpiresIn: u.PasswordResetTokenExpiresIn,
		EmailResetToken:             u.EmailResetToken,
		EmailResetTokenExpiresIn:    u.EmailResetTokenExpiresIn,
		CreatedAt:                   u.CreatedAt,
		UpdatedAt:                   u.UpdatedAt,
	}
}

func (m mongoUser) toDomain() *domain.User {
	return &domain.User{
		ID:                          m.ID.Hex(),
		Firstname:                   m.Firstname,
		Lastname:                    m.Lastname,
		Username:                    m.Username,
		Email:                       m.Email,
		BirthDate:                   m.BirthDate.UTC(),
		PasswordHash:                m.Password,
		Role:                        domain.Role(m.Role),
		Active:                      m.Active == nil || *m.Active,
		PasswordResetToken:          m.PasswordResetToken,
		PasswordResetTokenExpiresIn: utcPtr(m.PasswordResetTokenExpiresIn),
		EmailResetToken:             m.EmailResetToken,
		EmailResetTokenExpiresIn:    utcPtr(m.EmailResetTokenExpiresIn),
		CreatedAt:                   m.CreatedAt.UTC(),
		UpdatedAt:                   m.UpdatedAt.UTC(),
	}
}

// Create inserts a new user document.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toDocument(user)
	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

// FindByResetToken returns the user holding an unexpired digest for purpose.
func (r *UserRepository) FindByResetToken(ctx context.Context, purpose domain.ResetPurpose, digest string, now time.Time) (*domain.User, error) {
	tokenField, expiresField := resetFields(purpose)
	return r.findOne(ctx, bson.M{
		tokenField:   digest,
		expiresField: bson.M{"$gte": now.UTC()},
	})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var mu mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}

// List returns one page of users and the number of users matching filter.
// Credentials and reset tokens are never projected.
func (r *UserRepository) List(ctx context.Context, f ports.ListUsersFilter) ([]*domain.User, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := listFilter(f)

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	opts := options.Find().
		SetSort(listSort(f.Sort)).
		SetProjection(listProjection(f.Fields)).
		SetSkip(int64(f.Page-1) * int64(f.Limit)).
		SetLimit(int64(f.Limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoUser
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}

	users := make([]*domain.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toDomain())
	}
	return users, total, nil
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"active": active}})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"password": passwordHash}})
}

// UpdateProfile sets the non-nil fields of update and returns the new document.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	set := bson.M{"updatedAt": r.now().UTC()}
	if update.Firstname != nil {
		set["firstname"] = *update.Firstname
	}
	if update.Lastname != nil {
		set["lastname"] = *update.Lastname
	}
	if update.BirthDate != nil {
		set["birthDate"] = update.BirthDate.UTC()
	}

	return r.findOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, domain.ErrUserNotFound)
}

// SetResetToken stores digest and expiresAt together, replacing any
// outstanding token of the same purpose.
func (r *UserRepository) SetResetToken(ctx context.Context, id string, purpose domain.ResetPurpose, digest string, expiresAt time.Time) error {
	tokenField, expiresField := resetFields(purpose)
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		tokenField:   digest,
		expiresField: expiresAt.UTC(),
	}})
}

func (r *UserRepository) ClearResetToken(ctx context.Context, id string, purpose domain.ResetPurpose) error {
	tokenField, expiresField := resetFields(purpose)
	return r.updateByID(ctx, id, bson.M{"$unset": bson.M{tokenField: "", expiresField: ""}})
}

// ConsumeResetToken applies change only while the digest still matches and
// has not expired, clearing the token pair in the same write. Two concurrent
// redemptions of one token cannot both succeed.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, id string, purpose domain.ResetPurpose, digest string, now time.Time, change domain.CredentialChange) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrTokenExpiredOrInvalid
	}

	tokenField, expiresField := resetFields(purpose)
	filter := bson.M{
		"_id":        oid,
		tokenField:   digest,
		expiresField: bson.M{"$gte": now.UTC()},
	}

	set := bson.M{"updatedAt": r.now().UTC()}
	if change.PasswordHash != "" {
		set["password"] = change.PasswordHash
	}
	if change.Email != "" {
		set["email"] = change.Email
	}
	update := bson.M{
		"$set":   set,
		"$unset": bson.M{tokenField: "", expiresField: ""},
	}

	return r.findOneAndUpdate(ctx, filter, update, domain.ErrTokenExpiredOrInvalid)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// EnsureIndexes creates the unique identity indexes and the reset-token
// lookup indexes on the users collection.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "passwordResetToken", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "emailResetToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *UserRepository) updateByID(ctx context.Context, id string, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}

	if set, ok := update["$set"].(bson.M); ok {
		set["updatedAt"] = r.now().UTC()
	} else {
		update["$set"] = bson.M{"updatedAt": r.now().UTC()}
	}

	res, err := r.col.UpdateByID(ctx, oid, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M, notFound error) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var mu mongoUser
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateKey
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return mu.toDomain(), nil
}

// resetFields returns the token and expiry field names for purpose.
func resetFields(purpose domain.ResetPurpose) (string, string) {
	if purpose == domain.ResetEmail {
		return "emailResetToken", "emailResetTokenExpiresIn"
	}
	return "passwordResetToken", "passwordResetTokenExpiresIn"
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
