package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJWTResolverRoundTrip(t *testing.T) {
	r := NewJWTResolver("s3cret")
	token, err := r.IssueToken("user-1", []string{"Admin"}, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	ac, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", ac.UserID)
	assert.True(t, ac.IsAdmin())
	assert.Equal(t, RoleAdmin, ac.ActorRole())
}

func TestJWTResolverRejectsBadTokens(t *testing.T) {
	r := NewJWTResolver("s3cret")

	_, err := r.Resolve(context.Background(), "")
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	other := NewJWTResolver("different")
	token, err := other.IssueToken("user-1", nil, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), token)
	assert.True(t, errors.Is(err, ErrUnauthenticated))

	expired, err := r.IssueToken("user-1", nil, time.Now().Add(-time.Hour).Unix())
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), expired)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestJWTResolverDefaultsToMember(t *testing.T) {
	r := NewJWTResolver("s3cret")
	token, err := r.IssueToken("recruiter-7", nil, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	ac, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, ac.HasRole(RoleMember))
	assert.False(t, ac.SeesAll())
}

func TestAuthorizerPolicies(t *testing.T) {
	a, err := NewAuthorizer(zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	admin := Context{UserID: "a", Roles: []string{RoleAdmin}}
	member := Context{UserID: "m", Roles: []string{RoleMember}}

	assert.NoError(t, a.Authorize(ctx, admin, ObjectEscrowHold, ActionRelease))
	assert.NoError(t, a.Authorize(ctx, System(), ObjectPayoutSchedule, ActionProcessDue))
	assert.True(t, a.Can(ctx, member, ObjectEscrowHold, ActionView))

	err = a.Authorize(ctx, member, ObjectEscrowHold, ActionRelease)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.Contains(t, err.Error(), "escrow_hold.release requires administrative access")

	assert.False(t, a.Can(ctx, System(), ObjectEscrowHold, ActionRelease))
	assert.True(t, errors.Is(a.Authorize(ctx, Context{}, ObjectEscrowHold, ActionView), ErrUnauthenticated))
}
