package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/iam/domain"
)

// Callers that do not know which slot a token value lives in pass an empty
// kind; the repository then checks the access token, the refresh token and
// the authorization code, in that order.
func TestFindByTokenBareValueChecksEverySlot(t *testing.T) {
	repo := newFakeAuthorizationRepo()
	ctx := context.Background()
	now := time.Now()

	token := func(value string) *domain.AuthorizationToken {
		return &domain.AuthorizationToken{Value: value, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	}

	require.NoError(t, repo.Save(ctx, &domain.AuthorizationRecord{
		ID:          "rec-access",
		AccessToken: &domain.AccessTokenCell{AuthorizationToken: *token("access-tok")},
	}))
	require.NoError(t, repo.Save(ctx, &domain.AuthorizationRecord{
		ID:           "rec-refresh",
		RefreshToken: token("refresh-tok"),
	}))
	require.NoError(t, repo.Save(ctx, &domain.AuthorizationRecord{
		ID:                "rec-code",
		AuthorizationCode: token("code-tok"),
	}))

	for value, wantID := range map[string]string{
		"access-tok":  "rec-access",
		"refresh-tok": "rec-refresh",
		"code-tok":    "rec-code",
	} {
		record, err := repo.FindByToken(ctx, value, "")
		require.NoError(t, err, value)
		assert.Equal(t, wantID, record.ID)
	}

	_, err := repo.FindByToken(ctx, "never-issued", "")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestFindByTokenBareValuePrefersAccessSlot(t *testing.T) {
	repo := newFakeAuthorizationRepo()
	ctx := context.Background()
	now := time.Now()

	// The same value lives in two records in different slots; the bare
	// lookup resolves to the access-token owner.
	require.NoError(t, repo.Save(ctx, &domain.AuthorizationRecord{
		ID: "rec-code",
		AuthorizationCode: &domain.AuthorizationToken{
			Value: "shared", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		},
	}))
	require.NoError(t, repo.Save(ctx, &domain.AuthorizationRecord{
		ID: "rec-access",
		AccessToken: &domain.AccessTokenCell{
			AuthorizationToken: domain.AuthorizationToken{
				Value: "shared", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
			},
		},
	}))

	record, err := repo.FindByToken(ctx, "shared", "")
	require.NoError(t, err)
	assert.Equal(t, "rec-access", record.ID)
}
