package service

import (
	"context"
	"testing"

	"imgforge/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_CreateDefaultsToFreeAndIsIdempotent(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), zerolog.Nop())
	ctx := context.Background()

	u, err := svc.Create(ctx, &model.User{UserID: "u1", Name: "Ada", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, u.Tier)

	again, err := svc.Create(ctx, &model.User{UserID: "u1", Name: "Someone Else", Tier: model.TierPaid})
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)
	assert.Equal(t, model.TierFree, again.Tier)
}

func TestUserService_GetMissing(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), zerolog.Nop())
	_, err := svc.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_SetTier(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(&model.User{UserID: "u1", Tier: model.TierFree}), zerolog.Nop())
	ctx := context.Background()

	u, err := svc.SetTier(ctx, "u1", model.TierPaid)
	require.NoError(t, err)
	assert.Equal(t, model.TierPaid, u.Tier)

	_, err = svc.SetTier(ctx, "u1", model.Tier("gold"))
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = svc.SetTier(ctx, "nobody", model.TierPaid)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
