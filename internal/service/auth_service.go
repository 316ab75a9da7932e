package service

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrTokenInvalid = errors.New("invalid token")

// Role identifies who a bearer token was minted for.
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleRecruiter Role = "recruiter"
	RoleService   Role = "service"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCandidate, RoleRecruiter, RoleService:
		return true
	}
	return false
}

// Claims extends JWT standard claims with app-specific fields. Subject is the
// candidate ID for candidate tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
	// JobIDs limits a recruiter to these jobs. Empty means all jobs.
	JobIDs []string `json:"job_ids,omitempty"`
}

// CanViewJob reports whether the claims grant access to a job's sessions.
func (c *Claims) CanViewJob(jobID string) bool {
	switch c.Role {
	case RoleService:
		return true
	case RoleRecruiter:
		return len(c.JobIDs) == 0 || slices.Contains(c.JobIDs, jobID)
	}
	return false
}

// AuthService verifies HS256 bearer tokens minted by the identity service.
type AuthService struct {
	secret []byte
	now    func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret), now: time.Now}
}

// IssueToken signs a token for role and subject. Production tokens come from
// the identity service; this is used by cmd/issue-token and tests.
func (s *AuthService) IssueToken(role Role, subject string, jobIDs []string, ttl time.Duration) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := s.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:   role,
		JobIDs: jobIDs,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: bad claims", ErrTokenInvalid)
	}
	if !claims.Role.Valid() || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing role or subject", ErrTokenInvalid)
	}
	return claims, nil
}
