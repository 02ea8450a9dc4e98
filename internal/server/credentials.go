// Package server stores user credentials and profiles for the SecureChat
// service. Passwords are kept only as bcrypt hashes.
package server

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Errors returned by the credential store.
var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// Profile statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Profile holds the user-visible presentation fields of an account.
type Profile struct {
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
	Avatar      string `json:"avatar,omitempty"`
}

// ProfilePatch is a partial profile update; nil fields are left unchanged.
type ProfilePatch struct {
	DisplayName *string `json:"displayName"`
	Status      *string `json:"status"`
	Avatar      *string `json:"avatar"`
}

// User is a registered account. The password hash never leaves the store.
type User struct {
	Username  string
	PublicKey string
	Profile   Profile
	CreatedAt time.Time
}

type account struct {
	passwordHash []byte
	publicKey    string
	profile      Profile
	createdAt    time.Time
}

// CredentialStore owns all User records. It is safe for concurrent use; the
// expensive bcrypt comparisons run outside its lock so a login in flight never
// blocks registry or history operations.
type CredentialStore struct {
	mu        sync.RWMutex
	users     map[string]*account
	dummyHash []byte
	cost      int
}

// NewCredentialStore creates an empty credential store. Accounts live for the
// process lifetime only; durability of user records is out of scope for this
// deployment.
func NewCredentialStore() *CredentialStore {
	// Hashed once up front so Verify can burn the same bcrypt work for
	// unknown usernames as for wrong passwords.
	dummy, err := bcrypt.GenerateFromPassword([]byte("securechat-dummy-credential"), bcrypt.DefaultCost)
	if err != nil {
		// GenerateFromPassword only fails for invalid cost values.
		panic(err)
	}

	return &CredentialStore{
		users:     make(map[string]*account),
		dummyHash: dummy,
		cost:      bcrypt.DefaultCost,
	}
}

// Register creates a new account with a salted one-way hash of the password.
// The optional public key and profile are stored as given; display name
// defaults to the username and status to offline.
func (s *CredentialStore) Register(username, password, publicKey string, profile *Profile) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}

	prof := Profile{
		DisplayName: username,
		Status:      StatusOffline,
	}
	if profile != nil {
		if profile.DisplayName != "" {
			prof.DisplayName = profile.DisplayName
		}
		prof.Avatar = profile.Avatar
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return ErrUsernameTaken
	}

	s.users[username] = &account{
		passwordHash: hash,
		publicKey:    publicKey,
		profile:      prof,
		createdAt:    time.Now(),
	}
	return nil
}

// Verify checks a username/password pair and returns a snapshot of the user
// on success. Unknown usernames and wrong passwords share the same error and
// the same bcrypt cost, so the response does not reveal which one happened.
func (s *CredentialStore) Verify(username, password string) (User, error) {
	s.mu.RLock()
	acct, exists := s.users[username]
	hash := s.dummyHash
	if exists {
		hash = acct.passwordHash
	}
	s.mu.RUnlock()

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !exists {
		return User{}, ErrInvalidCredentials
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return acct.snapshot(username), nil
}

// UpdateProfile merges the non-nil fields of the patch into the stored
// profile and returns the updated user.
func (s *CredentialStore) UpdateProfile(username string, patch ProfilePatch) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, exists := s.users[username]
	if !exists {
		return User{}, ErrUserNotFound
	}

	if patch.DisplayName != nil {
		acct.profile.DisplayName = *patch.DisplayName
	}
	if patch.Status != nil {
		acct.profile.Status = *patch.Status
	}
	if patch.Avatar != nil {
		acct.profile.Avatar = *patch.Avatar
	}
	return acct.snapshot(username), nil
}

// SetPublicKey replaces the stored public key for the user. A no-op for
// unknown usernames.
func (s *CredentialStore) SetPublicKey(username, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct, exists := s.users[username]; exists {
		acct.publicKey = key
	}
}

// SetStatus updates the presence status on the user's profile. A no-op for
// unknown usernames.
func (s *CredentialStore) SetStatus(username, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct, exists := s.users[username]; exists {
		acct.profile.Status = status
	}
}

// PublicKeys returns the public key of every user that has one on file.
func (s *CredentialStore) PublicKeys() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[string]string)
	for username, acct := range s.users {
		if acct.publicKey != "" {
			keys[username] = acct.publicKey
		}
	}
	return keys
}

// Profiles returns the profile of every registered user.
func (s *CredentialStore) Profiles() map[string]Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make(map[string]Profile, len(s.users))
	for username, acct := range s.users {
		profiles[username] = acct.profile
	}
	return profiles
}

func (a *account) snapshot(username string) User {
	return User{
		Username:  username,
		PublicKey: a.publicKey,
		Profile:   a.profile,
		CreatedAt: a.createdAt,
	}
}
