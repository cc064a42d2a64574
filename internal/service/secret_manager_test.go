package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	values map[string]string
	err    error
}

func (f *fakeSecrets) AccessSecret(_ context.Context, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.values[name], nil
}

func (f *fakeSecrets) Close() error { return nil }

func TestSecretVersionName(t *testing.T) {
	assert.Equal(t, "projects/p1/secrets/gemini-key/versions/latest", secretVersionName("p1", "gemini-key"))
	assert.Equal(t, "projects/p2/secrets/k/versions/latest", secretVersionName("p1", "projects/p2/secrets/k"))
	assert.Equal(t, "projects/p2/secrets/k/versions/3", secretVersionName("p1", "projects/p2/secrets/k/versions/3"))
}

func TestResolveProviderAPIKey(t *testing.T) {
	ctx := context.Background()
	secrets := &fakeSecrets{values: map[string]string{"gemini-key": "from-secret"}}

	key, err := ResolveProviderAPIKey(ctx, "direct", "gemini-key", secrets)
	require.NoError(t, err)
	assert.Equal(t, "direct", key)

	key, err = ResolveProviderAPIKey(ctx, "", "gemini-key", secrets)
	require.NoError(t, err)
	assert.Equal(t, "from-secret", key)

	key, err = ResolveProviderAPIKey(ctx, "", "", secrets)
	require.NoError(t, err)
	assert.Empty(t, key)

	key, err = ResolveProviderAPIKey(ctx, "", "gemini-key", nil)
	require.NoError(t, err)
	assert.Empty(t, key)

	_, err = ResolveProviderAPIKey(ctx, "", "gemini-key", &fakeSecrets{err: errors.New("denied")})
	assert.Error(t, err)
}
