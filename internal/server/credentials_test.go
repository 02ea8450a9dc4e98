package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndVerify(t *testing.T) {
	store := NewCredentialStore()

	require.NoError(t, store.Register("alice", "pw12345678", "", nil))

	user, err := store.Verify("alice", "pw12345678")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "alice", user.Profile.DisplayName)
	require.Equal(t, StatusOffline, user.Profile.Status)
	require.False(t, user.CreatedAt.IsZero())
}

func TestRegisterDuplicateUsername(t *testing.T) {
	store := NewCredentialStore()

	require.NoError(t, store.Register("alice", "pw12345678", "", nil))
	err := store.Register("alice", "other-password", "", nil)
	require.ErrorIs(t, err, ErrUsernameTaken)

	// The original password must still verify.
	_, err = store.Verify("alice", "pw12345678")
	require.NoError(t, err)
}

func TestVerifyWrongPassword(t *testing.T) {
	store := NewCredentialStore()
	require.NoError(t, store.Register("alice", "pw12345678", "", nil))

	_, err := store.Verify("alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyUnknownUserSameError(t *testing.T) {
	store := NewCredentialStore()
	require.NoError(t, store.Register("alice", "pw12345678", "", nil))

	_, unknownErr := store.Verify("nobody", "pw12345678")
	_, wrongErr := store.Verify("alice", "wrong")
	require.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	require.Equal(t, wrongErr, unknownErr)
}

func TestRegisterStoresProfileAndKey(t *testing.T) {
	store := NewCredentialStore()

	profile := &Profile{DisplayName: "Alice W.", Avatar: "avatar.png"}
	require.NoError(t, store.Register("alice", "pw12345678", "key-material", profile))

	user, err := store.Verify("alice", "pw12345678")
	require.NoError(t, err)
	require.Equal(t, "Alice W.", user.Profile.DisplayName)
	require.Equal(t, "avatar.png", user.Profile.Avatar)
	require.Equal(t, StatusOffline, user.Profile.Status)
	require.Equal(t, "key-material", user.PublicKey)
}

func TestUpdateProfileMergesFields(t *testing.T) {
	store := NewCredentialStore()
	require.NoError(t, store.Register("alice", "pw12345678", "", &Profile{DisplayName: "Alice", Avatar: "a.png"}))

	name := "Alice the Second"
	user, err := store.UpdateProfile("alice", ProfilePatch{DisplayName: &name})
	require.NoError(t, err)
	require.Equal(t, "Alice the Second", user.Profile.DisplayName)
	// Unspecified fields are retained.
	require.Equal(t, "a.png", user.Profile.Avatar)
	require.Equal(t, StatusOffline, user.Profile.Status)
}

func TestUpdateProfileUnknownUser(t *testing.T) {
	store := NewCredentialStore()

	_, err := store.UpdateProfile("nobody", ProfilePatch{})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSetStatusAndPublicKey(t *testing.T) {
	store := NewCredentialStore()
	require.NoError(t, store.Register("alice", "pw12345678", "", nil))

	store.SetStatus("alice", StatusOnline)
	store.SetPublicKey("alice", "new-key")

	profiles := store.Profiles()
	require.Equal(t, StatusOnline, profiles["alice"].Status)

	keys := store.PublicKeys()
	require.Equal(t, "new-key", keys["alice"])

	// Mutators on unknown users are no-ops.
	store.SetStatus("nobody", StatusOnline)
	store.SetPublicKey("nobody", "key")
	require.Len(t, store.Profiles(), 1)
}

func TestPublicKeysOmitsUsersWithoutKey(t *testing.T) {
	store := NewCredentialStore()
	require.NoError(t, store.Register("alice", "pw12345678", "alice-key", nil))
	require.NoError(t, store.Register("bob", "pw12345678", "", nil))

	keys := store.PublicKeys()
	require.Equal(t, map[string]string{"alice": "alice-key"}, keys)
}
