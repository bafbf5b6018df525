package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/flightclub/internal/dbtest"
	"github.com/smallbiznis/flightclub/internal/owner/domain"
	"github.com/smallbiznis/flightclub/internal/owner/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestResolveRequiresActiveOwner(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.CreateUser(t, db, 1, "Anna", true)
	dbtest.CreateUser(t, db, 2, "Bert", false)
	dbtest.CreateCostCenter(t, db, 10, "Club", true)
	svc := New(Params{DB: db, Log: zaptest.NewLogger(t), Repo: repository.Provide()})
	ctx := context.Background()

	account, err := svc.Resolve(ctx, db, domain.Ref{Type: domain.TypeUser, ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "Anna", account.Name)

	_, err = svc.Resolve(ctx, db, domain.Ref{Type: domain.TypeUser, ID: 2})
	assert.ErrorIs(t, err, domain.ErrInactive)

	_, err = svc.Resolve(ctx, db, domain.Ref{Type: domain.TypeCostCenter, ID: 99})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Resolve(ctx, db, domain.Ref{Type: domain.TypeUser})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.Resolve(ctx, db, domain.Ref{Type: "aircraft", ID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	inactive, err := svc.Get(ctx, domain.Ref{Type: domain.TypeUser, ID: 2})
	require.NoError(t, err)
	assert.False(t, inactive.Active)
}

func TestListOrdersByName(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.CreateUser(t, db, 1, "Zoe", true)
	dbtest.CreateUser(t, db, 2, "Anna", true)
	dbtest.CreateCostCenter(t, db, 10, "Training", true)
	dbtest.CreateCostCenter(t, db, 11, "Maintenance", true)
	svc := New(Params{DB: db, Log: zaptest.NewLogger(t), Repo: repository.Provide()})
	ctx := context.Background()

	users, err := svc.List(ctx, domain.TypeUser)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Anna", users[0].Name)
	assert.Equal(t, "Zoe", users[1].Name)

	centers, err := svc.List(ctx, domain.TypeCostCenter)
	require.NoError(t, err)
	require.Len(t, centers, 2)
	assert.Equal(t, "Maintenance", centers[0].Name)
	assert.Equal(t, domain.TypeCostCenter, centers[0].Ref.Type)

	_, err = svc.List(ctx, "aircraft")
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}
