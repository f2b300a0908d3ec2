// Package votetoken issues and validates the optional short-lived JWT that
// binds a voter to one (poll, participant) choice.
package votetoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/saxenaaman628/vote-pipeline/internal/errs"
)

var (
	ErrInvalidSignature = fmt.Errorf("%w: signature verification failed", errs.ErrInvalidToken)
	ErrTokenExpired     = fmt.Errorf("%w: token expired", errs.ErrInvalidToken)
	ErrTokenMismatch    = fmt.Errorf("%w: token does not match the vote", errs.ErrInvalidToken)
)

// Claims is the token payload. The json names match the issuer on the web tier.
type Claims struct {
	PollID        string `json:"pollId"`
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	jwt.RegisteredClaims
}

type Validator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewValidator(secret string, ttl time.Duration) *Validator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Validator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock returns a copy of v that reads time from now.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	cp := *v
	cp.now = now
	return &cp
}

// Issue mints a token for the trusted issuer that redirects the vote request.
func (v *Validator) Issue(pollID, participantID, userID string) (string, error) {
	now := v.now()
	claims := Claims{
		PollID:        pollID,
		ParticipantID: participantID,
		UserID:        userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Validate checks token against the vote it accompanies. An empty token is
// accepted: the token guards against tampering, it does not authorize.
// Checks run signature, then expiry, then payload match. A token expires
// once now is strictly after exp.
func (v *Validator) Validate(token, pollID, participantID, userID string) error {
	if token == "" {
		return nil
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, jwt.ErrTokenRequiredClaimMissing)
	}
	if v.now().After(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}

	if claims.PollID != pollID || claims.ParticipantID != participantID || claims.UserID != userID {
		return ErrTokenMismatch
	}
	return nil
}
