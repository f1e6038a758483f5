package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InviteTTL is how long an invitation link stays valid.
const InviteTTL = 7 * 24 * time.Hour

var ErrInvalidInvite = errors.New("invalid or expired invitation")

// InviteClaims identify who is invited where.
type InviteClaims struct {
	OrganizationID int64  `json:"organization_id"`
	FamilyGroupID  int64  `json:"family_group_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

// Invites signs and verifies family group invitations.
type Invites struct {
	secret []byte
	now    func() time.Time
}

func NewInvites(secret string) *Invites {
	return &Invites{secret: []byte(secret), now: time.Now}
}

func (i *Invites) Issue(organizationID, familyGroupID int64, email, role string) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("invite secret not configured")
	}
	now := i.now()
	claims := &InviteClaims{
		OrganizationID: organizationID,
		FamilyGroupID:  familyGroupID,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "invite",
			ExpiresAt: jwt.NewNumericDate(now.Add(InviteTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign invite: %w", err)
	}
	return token, nil
}

func (i *Invites) Verify(token string) (*InviteClaims, error) {
	if len(i.secret) == 0 {
		return nil, ErrInvalidInvite
	}
	parsed, err := jwt.ParseWithClaims(token, &InviteClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithSubject("invite"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	claims, ok := parsed.Claims.(*InviteClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidInvite
	}
	return claims, nil
}
