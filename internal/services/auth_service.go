package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AdminSubject is the token subject issued to the research admin.
const AdminSubject = "admin"

type TokenSigner func(subject string, ttl time.Duration) (string, error)

// AdminAuthService checks the single admin password against a bcrypt hash
// and issues bearer tokens for the read-only endpoints.
type AdminAuthService struct {
	passHash  []byte
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token     string
	ExpiresIn time.Duration
}

func NewAdminAuthService(passwordHash string, signer TokenSigner) *AdminAuthService {
	return &AdminAuthService{
		passHash:  []byte(strings.TrimSpace(passwordHash)),
		signToken: signer,
		tokenTTL:  12 * time.Hour,
	}
}

// Enabled reports whether an admin password hash is configured.
func (s *AdminAuthService) Enabled() bool {
	return len(s.passHash) > 0
}

func (s *AdminAuthService) Login(password string) (*AuthResult, error) {
	if strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("password required")
	}
	if !s.Enabled() {
		return nil, NewForbiddenError("admin access disabled")
	}
	if err := bcrypt.CompareHashAndPassword(s.passHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(AdminSubject, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresIn: s.tokenTTL}, nil
}

func (s *AdminAuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

// HashPassword produces a bcrypt hash suitable for TRUTHPREF_ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
