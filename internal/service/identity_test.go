package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chat-backend/internal/apperror"
	"github.com/sakif/chat-backend/internal/model"
)

func TestGetOrCreate_CaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	ids := newTestIdentity(t, store)
	ctx := context.Background()

	bob, err := ids.GetOrCreate(ctx, "Bob")
	require.NoError(t, err)
	again, err := ids.GetOrCreate(ctx, "bob")
	require.NoError(t, err)

	assert.Equal(t, bob.ID, again.ID)
	assert.Equal(t, "Bob", again.Username, "the first spelling is kept")
	assert.False(t, bob.HasPassword)

	logins, err := ids.LoginHistory(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, logins, 2)
	assert.False(t, logins[1].Timestamp.Before(logins[0].Timestamp))
}

func TestGetOrCreate_TrimsAndRejectsBlank(t *testing.T) {
	ids := newTestIdentity(t, newTestStore(t))
	ctx := context.Background()

	u, err := ids.GetOrCreate(ctx, "  alice  ")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = ids.GetOrCreate(ctx, "   ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestGetOrCreate_ConcurrentCallsCreateOneUser(t *testing.T) {
	store := newTestStore(t)
	ids := newTestIdentity(t, store)
	ctx := context.Background()

	const n = 10
	got := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := ids.GetOrCreate(ctx, "racer")
			if assert.NoError(t, err) {
				got[i] = u.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range got {
		assert.Equal(t, got[0], id)
	}
	assert.Len(t, store.Snapshot().Users, 1)
	assert.Len(t, store.Snapshot().Logins, n)
}

func TestRegister_Validation(t *testing.T) {
	ids := newTestIdentity(t, newTestStore(t))

	tests := []struct {
		name                     string
		username, password, full string
		field                    string
	}{
		{name: "blank username", username: " ", password: "pw", full: "N", field: "username"},
		{name: "blank name", username: "u", password: "pw", full: "  ", field: "name"},
		{name: "blank password", username: "u", password: "   ", full: "N", field: "password"},
		{name: "password too long", username: "u", password: strings.Repeat("x", 73), full: "N", field: "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ids.Register(context.Background(), tt.username, tt.password, tt.full)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestRegister_DuplicateIsConflict(t *testing.T) {
	ids := newTestIdentity(t, newTestStore(t))
	ctx := context.Background()

	_, err := ids.Register(ctx, "carol", "secret1", "Carol")
	require.NoError(t, err)

	_, err = ids.Register(ctx, "CAROL", "secret2", "Carol Again")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestRegister_ClaimsLoginOnlyIdentity(t *testing.T) {
	store := newTestStore(t)
	ids := newTestIdentity(t, store)
	ctx := context.Background()

	loginOnly, err := ids.GetOrCreate(ctx, "dave")
	require.NoError(t, err)

	registered, err := ids.Register(ctx, "Dave", "hunter2", "Dave D")
	require.NoError(t, err)

	assert.Equal(t, loginOnly.ID, registered.ID)
	assert.True(t, registered.HasPassword)
	assert.Equal(t, "Dave D", registered.Name)
	assert.Len(t, store.Snapshot().Users, 1)

	logins, err := ids.LoginHistory(ctx, registered.ID)
	require.NoError(t, err)
	assert.Len(t, logins, 1, "register records no login")
}

func TestRegister_StoresSaltedHash(t *testing.T) {
	store := newTestStore(t)
	ids := newTestIdentity(t, store)

	_, err := ids.Register(context.Background(), "erin", "pw", "Erin")
	require.NoError(t, err)

	stored := store.Snapshot().Users[0]
	assert.NotEqual(t, "pw", stored.PasswordHash)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2"))
}

func TestAuthenticate(t *testing.T) {
	store := newTestStore(t)
	ids := newTestIdentity(t, store)
	ctx := context.Background()

	reg, err := ids.Register(ctx, "frank", "correct", "Frank")
	require.NoError(t, err)
	_, err = ids.GetOrCreate(ctx, "loginonly")
	require.NoError(t, err)

	u, err := ids.Authenticate(ctx, "FRANK", "correct")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, u.ID)

	logins, err := ids.LoginHistory(ctx, reg.ID)
	require.NoError(t, err)
	assert.Len(t, logins, 1)

	_, wrongPassword := ids.Authenticate(ctx, "frank", "incorrect")
	_, unknownUser := ids.Authenticate(ctx, "nobody", "correct")
	_, noPassword := ids.Authenticate(ctx, "loginonly", "")

	for _, err := range []error{wrongPassword, unknownUser, noPassword} {
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	}
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Equal(t, wrongPassword.Error(), noPassword.Error())

	logins, err = ids.LoginHistory(ctx, reg.ID)
	require.NoError(t, err)
	assert.Len(t, logins, 1, "failed attempts are not recorded")
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestAuthenticate_LegacyHashUpgradedToBcrypt(t *testing.T) {
	store := newTestStore(t)
	ids := newTestIdentity(t, store)
	ctx := context.Background()

	legacy := &model.User{Username: "grace", Name: "Grace", PasswordHash: sha256Hex("old-pass")}
	require.NoError(t, store.Users().Create(ctx, legacy))

	_, err := ids.Authenticate(ctx, "grace", "wrong")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, sha256Hex("old-pass"), store.Snapshot().Users[0].PasswordHash)

	u, err := ids.Authenticate(ctx, "grace", "old-pass")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, u.ID)
	assert.True(t, strings.HasPrefix(store.Snapshot().Users[0].PasswordHash, "$2"))

	_, err = ids.Authenticate(ctx, "grace", "old-pass")
	assert.NoError(t, err, "the upgraded hash still verifies")
}

func TestLegacyLoginOnlyIdentity(t *testing.T) {
	store := newTestStore(t)
	ids := newTestIdentity(t, store)
	ctx := context.Background()

	legacy := &model.User{Username: "heidi", PasswordHash: model.LegacyEmptyPasswordHash}
	require.NoError(t, store.Users().Create(ctx, legacy))

	_, err := ids.Authenticate(ctx, "heidi", "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	got, err := ids.GetOrCreate(ctx, "heidi")
	require.NoError(t, err)
	assert.False(t, got.HasPassword)

	registered, err := ids.Register(ctx, "heidi", "fresh", "Heidi")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, registered.ID)
	assert.True(t, registered.HasPassword)

	_, err = ids.Authenticate(ctx, "heidi", "fresh")
	assert.NoError(t, err)
}

func TestGetUser(t *testing.T) {
	ids := newTestIdentity(t, newTestStore(t))
	ctx := context.Background()

	created, err := ids.GetOrCreate(ctx, "gina")
	require.NoError(t, err)

	got, err := ids.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = ids.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
