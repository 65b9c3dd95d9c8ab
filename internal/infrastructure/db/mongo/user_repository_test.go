package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
)

const usersNS = "test.users"

func userDoc(id primitive.ObjectID, username string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "firstname", Value: "Ada"},
		{Key: "lastname", Value: "Lovelace"},
		{Key: "username", Value: username},
		{Key: "email", Value: username + "@example.com"},
		{Key: "birthDate", Value: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Key: "password", Value: "$2a$12$hash"},
		{Key: "role", Value: "guide"},
		{Key: "active", Value: false},
	}
}

func TestUserRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("create assigns id", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		created, err := repo.Create(ctx, &domain.User{Username: "ada", Email: "ada@example.com", Active: true})
		require.NoError(mt, err)
		assert.Len(mt, created.ID, 24)
		assert.Equal(mt, domain.RoleUser, created.Role)
		assert.True(mt, created.Active)
	})

	mt.Run("create stores unknown role as user", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		_, err := repo.Create(ctx, &domain.User{Username: "eve", Email: "eve@example.com", Role: "superuser"})
		require.NoError(mt, err)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		docs, err := evt.Command.Lookup("documents").Array().Values()
		require.NoError(mt, err)
		assert.Equal(mt, "user", docs[0].Document().Lookup("role").StringValue())
	})

	mt.Run("create duplicate", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: test.users index: email_1",
		}))

		_, err := repo.Create(ctx, &domain.User{Username: "ada", Email: "ada@example.com"})
		assert.ErrorIs(mt, err, domain.ErrDuplicateKey)
	})

	mt.Run("find by username decodes inactive user", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, usersNS, mtest.FirstBatch, userDoc(id, "ada")))

		u, err := repo.FindByUsername(ctx, "ada")
		require.NoError(mt, err)
		assert.Equal(mt, id.Hex(), u.ID)
		assert.Equal(mt, "$2a$12$hash", u.PasswordHash)
		assert.Equal(mt, domain.RoleGuide, u.Role)
		assert.False(mt, u.Active)
	})

	mt.Run("find by email not found", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, usersNS, mtest.FirstBatch))

		_, err := repo.FindByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(mt, err, domain.ErrUserNotFound)
	})

	mt.Run("find by malformed id", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)

		_, err := repo.FindByID(ctx, "not-an-object-id")
		assert.ErrorIs(mt, err, domain.ErrUserNotFound)
	})

	mt.Run("consume reset token is conditional", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: userDoc(id, "ada")},
		})

		now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		u, err := repo.ConsumeResetToken(ctx, id.Hex(), domain.ResetPassword, "digest", now, domain.CredentialChange{PasswordHash: "$2a$12$new"})
		require.NoError(mt, err)
		assert.Equal(mt, id.Hex(), u.ID)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "findAndModify", evt.CommandName)

		query := evt.Command.Lookup("query").Document()
		assert.Equal(mt, "digest", query.Lookup("passwordResetToken").StringValue())
		_, hasExpiry := query.Lookup("passwordResetTokenExpiresIn").Document().LookupErr("$gte")
		assert.NoError(mt, hasExpiry)

		update := evt.Command.Lookup("update").Document()
		unset := update.Lookup("$unset").Document()
		_, err = unset.LookupErr("passwordResetToken")
		assert.NoError(mt, err)
		_, err = unset.LookupErr("passwordResetTokenExpiresIn")
		assert.NoError(mt, err)
		assert.Equal(mt, "$2a$12$new", update.Lookup("$set").Document().Lookup("password").StringValue())
	})

	mt.Run("consume reset token replay", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})

		_, err := repo.ConsumeResetToken(ctx, primitive.NewObjectID().Hex(), domain.ResetEmail, "digest", time.Now(), domain.CredentialChange{Email: "new@example.com"})
		assert.ErrorIs(mt, err, domain.ErrTokenExpiredOrInvalid)
	})

	mt.Run("set active unknown user", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := repo.SetActive(ctx, primitive.NewObjectID().Hex(), false)
		assert.ErrorIs(mt, err, domain.ErrUserNotFound)
	})

	mt.Run("clear reset token", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		require.NoError(mt, repo.ClearResetToken(ctx, primitive.NewObjectID().Hex(), domain.ResetEmail))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		updates, err := evt.Command.Lookup("updates").Array().Values()
		require.NoError(mt, err)
		unset := updates[0].Document().Lookup("u", "$unset").Document()
		_, err = unset.LookupErr("emailResetToken")
		assert.NoError(mt, err)
		_, err = unset.LookupErr("emailResetTokenExpiresIn")
		assert.NoError(mt, err)
	})

	mt.Run("delete unknown user", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := repo.Delete(ctx, primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, domain.ErrUserNotFound)
	})

	mt.Run("list pages and hides inactive", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, usersNS, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}),
			mtest.CreateCursorResponse(0, usersNS, mtest.FirstBatch,
				userDoc(primitive.NewObjectID(), "ada"),
				userDoc(primitive.NewObjectID(), "bob"),
			),
		)

		users, total, err := repo.List(ctx, ports.ListUsersFilter{Page: 2, Limit: 2})
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), total)
		assert.Len(mt, users, 2)

		mt.GetStartedEvent() // count aggregate
		find := mt.GetStartedEvent()
		require.NotNil(mt, find)
		assert.Equal(mt, "find", find.CommandName)
		assert.EqualValues(mt, 2, find.Command.Lookup("skip").AsInt64())
		assert.EqualValues(mt, 2, find.Command.Lookup("limit").AsInt64())

		projection := find.Command.Lookup("projection").Document()
		_, err = projection.LookupErr("password")
		assert.NoError(mt, err, "password must be projected away")
	})

	mt.Run("ping", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, Ping(ctx, mt.DB))

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized"}))
		assert.Error(mt, Ping(ctx, mt.DB))
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, repo.EnsureIndexes(ctx))
	})
}

func TestListFilter(t *testing.T) {
	since := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	got := listFilter(ports.ListUsersFilter{
		Conditions: []ports.FilterCondition{
			{Field: "role", Op: ports.OpEq, Value: "guide"},
			{Field: "birthDate", Op: ports.OpGte, Value: since},
		},
	})

	want := bson.D{{Key: "$and", Value: bson.A{
		bson.M{"active": bson.M{"$ne": false}},
		bson.M{"role": "guide"},
		bson.M{"birthDate": bson.M{"$gte": since}},
	}}}
	assert.Equal(t, want, got)

	assert.Equal(t, bson.D{}, listFilter(ports.ListUsersFilter{IncludeInactive: true}))
}

func TestListSortAndProjection(t *testing.T) {
	sort := listSort([]ports.SortField{{Field: "createdAt", Desc: true}, {Field: "username"}})
	assert.Equal(t, bson.D{
		{Key: "createdAt", Value: -1},
		{Key: "username", Value: 1},
		{Key: "_id", Value: 1},
	}, sort)

	assert.Equal(t, bson.D{{Key: "_id", Value: -1}}, listSort([]ports.SortField{{Field: "id", Desc: true}}))

	assert.Equal(t, bson.M{"username": 1, "_id": 1}, listProjection([]string{"username", "id"}))

	hidden := listProjection(nil)
	for _, f := range hiddenFields {
		assert.Equal(t, 0, hidden[f])
	}
}
