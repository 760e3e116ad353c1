package backend

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sadopc/taskr/internal/api"
)

const minPasswordLen = 8

// Auth issues and checks tokens. Access tokens are HS256 JWTs; refresh
// tokens are random strings stored hashed and rotated on every use.
type Auth struct {
	repo       *Repo
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	verifiers  map[string]SocialVerifier
	now        func() time.Time
}

type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func NewAuth(repo *Repo, cfg AuthConfig, verifiers ...SocialVerifier) (*Auth, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	a := &Auth{
		repo:       repo,
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		verifiers:  map[string]SocialVerifier{},
		now:        time.Now,
	}
	for _, v := range verifiers {
		a.verifiers[v.Provider()] = v
	}
	return a, nil
}

func (a *Auth) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < minPasswordLen {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, ErrInvalid)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := UserRecord{
		User:         api.User{ID: uuid.NewString(), Email: email, Name: strings.TrimSpace(req.Name)},
		PasswordHash: string(hash),
		Provider:     "password",
	}
	if err := a.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return a.issue(ctx, u.User)
}

func (a *Auth) Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	u, err := a.repo.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	// Social accounts have no password.
	if u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrBadCredentials
	}
	return a.issue(ctx, u.User)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*api.AuthResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required: %w", ErrInvalid)
	}
	userID, err := a.repo.ConsumeRefreshToken(ctx, hashToken(refreshToken), a.now())
	if err != nil {
		return nil, err
	}
	u, err := a.repo.UserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	return a.issue(ctx, u.User)
}

func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return a.repo.DeleteRefreshToken(ctx, hashToken(refreshToken))
}

// Social signs in with a provider identity token, creating the account on
// first use.
func (a *Auth) Social(ctx context.Context, req api.SocialLoginRequest) (*api.AuthResponse, error) {
	v, ok := a.verifiers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q: %w", req.Provider, ErrInvalid)
	}
	if req.IDToken == "" {
		return nil, fmt.Errorf("id token is required: %w", ErrInvalid)
	}
	id, err := v.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(id.Email)
	if err != nil {
		return nil, fmt.Errorf("provider email: %w", ErrBadCredentials)
	}

	u, err := a.repo.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		rec := UserRecord{
			User:     api.User{ID: uuid.NewString(), Email: email, Name: id.Name},
			Provider: req.Provider,
		}
		if err := a.repo.CreateUser(ctx, rec); err != nil {
			return nil, err
		}
		return a.issue(ctx, rec.User)
	}
	if err != nil {
		return nil, err
	}
	return a.issue(ctx, u.User)
}

func (a *Auth) User(ctx context.Context, id string) (*api.User, error) {
	u, err := a.repo.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &u.User, nil
}

// ParseAccess validates an access token and returns the user id it carries.
func (a *Auth) ParseAccess(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", fmt.Errorf("access token: %v: %w", err, ErrBadCredentials)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("access token without subject: %w", ErrBadCredentials)
	}
	return claims.Subject, nil
}

func (a *Auth) issue(ctx context.Context, u api.User) (*api.AuthResponse, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
		ID:        uuid.NewString(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}
	if err := a.repo.SaveRefreshToken(ctx, hashToken(refresh), u.ID, now.Add(a.refreshTTL)); err != nil {
		return nil, err
	}
	return &api.AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(a.accessTTL / time.Second),
		User:         u,
	}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("email is required: %w", ErrInvalid)
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", fmt.Errorf("invalid email %q: %w", s, ErrInvalid)
	}
	return s, nil
}
