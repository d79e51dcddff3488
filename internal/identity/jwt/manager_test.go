package jwt_test

import (
	"testing"
	"time"

	"github.com/drims/drims-backend/internal/identity/jwt"
	"github.com/drims/drims-backend/pkg/config"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(expiry time.Duration) *jwt.Manager {
	return jwt.NewManager(&config.JWTConfig{
		Secret:       "test-secret",
		AccessExpiry: expiry,
		Issuer:       "drims",
	})
}

func TestManager_GenerateAndValidate(t *testing.T) {
	mgr := newManager(time.Hour)

	token, err := mgr.Generate(&jwt.UserInfo{
		ID:          42,
		UserName:    "jdoe",
		DisplayName: "Jordan Doe",
		Role:        "COORDINATOR",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)

	claims, err := mgr.Validate(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "jdoe", claims.UserName)
	assert.Equal(t, "Jordan Doe", claims.DisplayName)
	assert.Equal(t, "COORDINATOR", claims.Role)
	assert.Equal(t, "drims", claims.Issuer)
}

func TestManager_Validate_Expired(t *testing.T) {
	mgr := newManager(-time.Minute)

	token, err := mgr.Generate(&jwt.UserInfo{ID: 42, UserName: "jdoe"})
	require.NoError(t, err)

	_, err = mgr.Validate(token.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTokenExpired))
}

func TestManager_Validate_WrongSecret(t *testing.T) {
	mgr := newManager(time.Hour)
	other := jwt.NewManager(&config.JWTConfig{
		Secret:       "different-secret",
		AccessExpiry: time.Hour,
		Issuer:       "drims",
	})

	token, err := mgr.Generate(&jwt.UserInfo{ID: 42, UserName: "jdoe"})
	require.NoError(t, err)

	_, err = other.Validate(token.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
}

func TestManager_Validate_Garbage(t *testing.T) {
	mgr := newManager(time.Hour)

	_, err := mgr.Validate("not.a.token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
}
