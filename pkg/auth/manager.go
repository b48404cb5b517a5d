// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stacklok/keyhive/pkg/audit"
	"github.com/stacklok/keyhive/pkg/crypto"
	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/storage"
)

// errInvalidCredentials is the single answer for unknown email and wrong
// password; callers never learn which check failed.
var errInvalidCredentials = errors.NewUnauthenticatedError("invalid email or password", nil)

// errInvalidRefresh is the single answer for unknown, revoked and expired
// refresh tokens.
var errInvalidRefresh = errors.NewUnauthenticatedError("invalid refresh token", nil)

// dummyHash keeps the bcrypt comparison on the login path even when the
// email is unknown, so response timing does not reveal account existence.
// Hash of an unguessable throwaway value.
var dummyHash = []byte("$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW")

// TokenPair is the pair of credentials issued on every successful sign-in.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Manager is the account and session service.
type Manager interface {
	// Register creates an account from email and password and signs it in.
	Register(ctx context.Context, email, name, password string) (Identity, TokenPair, error)
	// Login authenticates by email and password.
	Login(ctx context.Context, email, password string) (Identity, TokenPair, error)
	// OAuthSignIn finds or creates the account linked to a provider
	// subject and signs it in.
	OAuthSignIn(ctx context.Context, provider, subject, email, name string) (Identity, TokenPair, error)
	// Refresh exchanges a live refresh token for a new token pair. The
	// presented token is revoked; sessions rotate on every refresh.
	Refresh(ctx context.Context, rawRefreshToken string) (Identity, TokenPair, error)
	// Logout revokes the presented refresh token. Idempotent.
	Logout(ctx context.Context, rawRefreshToken string) error
	// RevokeAll revokes every refresh session of the account.
	RevokeAll(ctx context.Context, accountID string) error
	// Me returns the identity of an account by id.
	Me(ctx context.Context, accountID string) (Identity, error)
	// VerifyAccessToken validates a bearer token for the middleware.
	VerifyAccessToken(raw string) (Identity, error)
}

// Config carries the manager's tunables.
type Config struct {
	// BcryptCost is the bcrypt work factor for password hashes.
	BcryptCost int
	// RefreshTTL is the refresh session lifetime.
	RefreshTTL time.Duration
}

type manager struct {
	accounts storage.AccountStore
	sessions storage.RefreshTokenStore
	keys     *KeyService
	issuer   *TokenIssuer
	recorder audit.Recorder

	bcryptCost int
	refreshTTL time.Duration
}

// NewManager creates the account and session service.
func NewManager(
	accounts storage.AccountStore,
	sessions storage.RefreshTokenStore,
	keys *KeyService,
	issuer *TokenIssuer,
	recorder audit.Recorder,
	cfg Config,
) Manager {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}

	return &manager{
		accounts:   accounts,
		sessions:   sessions,
		keys:       keys,
		issuer:     issuer,
		recorder:   recorder,
		bcryptCost: cost,
		refreshTTL: refreshTTL,
	}
}

// Register creates an account from email and password and signs it in.
func (m *manager) Register(ctx context.Context, email, name, password string) (Identity, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateEmail(email); err != nil {
		return Identity{}, TokenPair{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return Identity{}, TokenPair{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.bcryptCost)
	if err != nil {
		return Identity{}, TokenPair{}, errors.NewInternalError("hashing password", err)
	}

	wrapped, err := m.keys.NewWrappedKey()
	if err != nil {
		return Identity{}, TokenPair{}, err
	}

	now := time.Now().UTC()
	account := storage.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		WrappedKey:   wrapped,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.accounts.Create(ctx, account); err != nil {
		if stderrors.Is(err, storage.ErrAlreadyExists) {
			return Identity{}, TokenPair{}, errors.NewConflictError("email already registered", nil)
		}
		return Identity{}, TokenPair{}, err
	}

	return m.signIn(ctx, account)
}

// Login authenticates by email and password.
func (m *manager) Login(ctx context.Context, email, password string) (Identity, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := m.accounts.GetByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			// Burn the same bcrypt cost as a real comparison.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return Identity{}, TokenPair{}, errInvalidCredentials
		}
		return Identity{}, TokenPair{}, err
	}
	if !account.HasPassword() {
		// OAuth-only account; same answer as a wrong password.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Identity{}, TokenPair{}, errInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Identity{}, TokenPair{}, errInvalidCredentials
	}

	if err := m.keys.EnsureWrappedKey(ctx, account.ID); err != nil {
		return Identity{}, TokenPair{}, err
	}
	return m.signIn(ctx, account)
}

// OAuthSignIn finds or creates the account linked to a provider subject.
func (m *manager) OAuthSignIn(ctx context.Context, provider, subject, email, name string) (Identity, TokenPair, error) {
	if provider == "" || subject == "" {
		return Identity{}, TokenPair{}, errors.NewValidationError("provider and subject are required", nil)
	}
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := m.accounts.GetByOAuth(ctx, provider, subject)
	if stderrors.Is(err, storage.ErrNotFound) {
		account, err = m.linkOrCreate(ctx, provider, subject, email, name)
	}
	if err != nil {
		return Identity{}, TokenPair{}, err
	}

	if err := m.keys.EnsureWrappedKey(ctx, account.ID); err != nil {
		return Identity{}, TokenPair{}, err
	}
	return m.signIn(ctx, account)
}

// linkOrCreate attaches the provider identity to the account owning the
// profile email, or creates a fresh account. A concurrent link of the same
// (provider, subject) pair resolves to the winner's account.
func (m *manager) linkOrCreate(ctx context.Context, provider, subject, email, name string) (storage.Account, error) {
	now := time.Now().UTC()

	account, err := m.accounts.GetByEmail(ctx, email)
	if email == "" || stderrors.Is(err, storage.ErrNotFound) {
		account = storage.Account{
			ID:        uuid.NewString(),
			Email:     email,
			Name:      strings.TrimSpace(name),
			CreatedAt: now,
			UpdatedAt: now,
		}
		wrapped, err := m.keys.NewWrappedKey()
		if err != nil {
			return storage.Account{}, err
		}
		account.WrappedKey = wrapped
		if err := m.accounts.Create(ctx, account); err != nil {
			return storage.Account{}, err
		}
	} else if err != nil {
		return storage.Account{}, err
	}

	identity := storage.OAuthIdentity{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Provider:  provider,
		Subject:   subject,
		Email:     email,
		CreatedAt: now,
	}
	err = m.accounts.AttachOAuth(ctx, identity)
	if stderrors.Is(err, storage.ErrAlreadyExists) {
		// Lost a race against another sign-in with the same subject.
		return m.accounts.GetByOAuth(ctx, provider, subject)
	}
	if err != nil {
		return storage.Account{}, err
	}
	return account, nil
}

// Refresh exchanges a live refresh token for a new pair, rotating the
// session.
func (m *manager) Refresh(ctx context.Context, rawRefreshToken string) (Identity, TokenPair, error) {
	if rawRefreshToken == "" {
		return Identity{}, TokenPair{}, errInvalidRefresh
	}

	fingerprint := crypto.Fingerprint(rawRefreshToken)
	session, err := m.sessions.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return Identity{}, TokenPair{}, errInvalidRefresh
		}
		return Identity{}, TokenPair{}, err
	}

	now := time.Now().UTC()
	if session.Revoked() || session.Expired(now) {
		return Identity{}, TokenPair{}, errInvalidRefresh
	}

	account, err := m.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		return Identity{}, TokenPair{}, errInvalidRefresh
	}

	// Rotation: the presented token dies before its replacement is born.
	// Failing in between leaves the session revoked, never duplicated.
	if err := m.sessions.Revoke(ctx, fingerprint, now); err != nil {
		return Identity{}, TokenPair{}, err
	}

	identity := identityOf(account)
	pair, err := m.issuePair(ctx, account.ID, identity)
	if err != nil {
		return Identity{}, TokenPair{}, err
	}
	return identity, pair, nil
}

// Logout revokes the presented refresh token. Unknown tokens are a no-op.
func (m *manager) Logout(ctx context.Context, rawRefreshToken string) error {
	if rawRefreshToken == "" {
		return nil
	}

	fingerprint := crypto.Fingerprint(rawRefreshToken)
	session, err := m.sessions.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := m.sessions.Revoke(ctx, fingerprint, time.Now().UTC()); err != nil {
		return err
	}
	m.recorder.Record(ctx, audit.Event{
		AccountID: session.AccountID,
		Action:    storage.ActionLogout,
	})
	return nil
}

// RevokeAll revokes every refresh session of the account.
func (m *manager) RevokeAll(ctx context.Context, accountID string) error {
	if err := m.sessions.RevokeAllForAccount(ctx, accountID, time.Now().UTC()); err != nil {
		return err
	}
	m.recorder.Record(ctx, audit.Event{
		AccountID: accountID,
		Action:    storage.ActionLogout,
		Metadata:  map[string]string{"scope": "all_sessions"},
	})
	return nil
}

// Me returns the identity of an account by id.
func (m *manager) Me(ctx context.Context, accountID string) (Identity, error) {
	account, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return Identity{}, err
	}
	return identityOf(account), nil
}

// VerifyAccessToken validates a bearer token for the middleware.
func (m *manager) VerifyAccessToken(raw string) (Identity, error) {
	return m.issuer.VerifyAccessToken(raw)
}

// signIn issues a token pair for the account and audits the login.
func (m *manager) signIn(ctx context.Context, account storage.Account) (Identity, TokenPair, error) {
	identity := identityOf(account)
	pair, err := m.issuePair(ctx, account.ID, identity)
	if err != nil {
		return Identity{}, TokenPair{}, err
	}

	if err := m.accounts.TouchLastLogin(ctx, account.ID, time.Now().UTC()); err != nil {
		return Identity{}, TokenPair{}, err
	}
	m.recorder.Record(ctx, audit.Event{
		AccountID: account.ID,
		Action:    storage.ActionLogin,
	})
	return identity, pair, nil
}

// issuePair mints an access token and opens a new refresh session.
func (m *manager) issuePair(ctx context.Context, accountID string, identity Identity) (TokenPair, error) {
	accessToken, accessExpiry, err := m.issuer.IssueAccessToken(identity)
	if err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := crypto.NewOpaqueToken()
	if err != nil {
		return TokenPair{}, err
	}

	now := time.Now().UTC()
	refreshExpiry := now.Add(m.refreshTTL)
	session := storage.RefreshToken{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Fingerprint: crypto.Fingerprint(refreshToken),
		ExpiresAt:   refreshExpiry,
		CreatedAt:   now,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func identityOf(account storage.Account) Identity {
	return Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
	}
}

// validateEmail rejects addresses the mail package cannot parse.
func validateEmail(email string) error {
	if email == "" {
		return errors.NewValidationError("email is required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.NewValidationError("email is not a valid address", nil)
	}
	return nil
}

// ValidatePassword enforces the registration password policy: at least 8
// characters with an upper-case letter, a lower-case letter and a digit.
func ValidatePassword(password string) error {
	var problems []string
	if len(password) < 8 {
		problems = append(problems, "at least 8 characters")
	}
	if len(password) > 128 {
		return errors.NewValidationError("password must be at most 128 characters", nil)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		problems = append(problems, "an upper-case letter")
	}
	if !hasLower {
		problems = append(problems, "a lower-case letter")
	}
	if !hasDigit {
		problems = append(problems, "a digit")
	}

	if len(problems) > 0 {
		return errors.NewValidationError(
			fmt.Sprintf("password must contain %s", strings.Join(problems, ", ")), nil)
	}
	return nil
}
