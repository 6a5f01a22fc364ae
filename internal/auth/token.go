package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/school-service/internal/domain"
)

const defaultTokenTTL = 60 * time.Minute

// TokenCodecConfig carries the signing secret and token lifetime.
type TokenCodecConfig struct {
	Secret string
	TTL    time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// TokenCodec encodes and verifies HS256 signed tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenCodec builds a codec.
func NewTokenCodec(cfg TokenCodecConfig) *TokenCodec {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		now:    now,
		parser: jwt.NewParser(jwt.WithStrictDecoding()),
	}
}

// Claims describes the signed token payload.
type Claims struct {
	Sub  int64  `json:"sub"`
	Role string `json:"role"`
	Iat  int64  `json:"iat"`
	Exp  int64  `json:"exp"`
}

// tokenHeader keeps the header fields in wire order.
type tokenHeader struct {
	Typ string `json:"typ"`
	Alg string `json:"alg"`
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

func (c Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c Claims) GetIssuer() (string, error)              { return "", nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

func (c Claims) GetSubject() (string, error) {
	return strconv.FormatInt(c.Sub, 10), nil
}

// ExpiresAt returns exp as a time.
func (c Claims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0)
}

// Encode builds and signs a token for the subject.
func (tc *TokenCodec) Encode(subjectID int64, role domain.Role) (string, time.Time, error) {
	now := tc.now()
	claims := Claims{
		Sub:  subjectID,
		Role: string(role),
		Iat:  now.Unix(),
		Exp:  now.Add(tc.ttl).Unix(),
	}

	header, err := json.Marshal(tokenHeader{Typ: "JWT", Alg: jwt.SigningMethodHS256.Alg()})
	if err != nil {
		return "", time.Time{}, err
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	signingString := encodeSegment(header) + "." + encodeSegment(payload)
	sig, err := jwt.SigningMethodHS256.Sign(signingString, tc.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signingString + "." + encodeSegment(sig), claims.ExpiresAt(), nil
}

// Decode validates structure, expiry and signature, in that order, and
// returns the claims only when all three hold.
func (tc *TokenCodec) Decode(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	var claims Claims
	parsed, _, err := tc.parser.ParseUnverified(token, &claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !tc.now().Before(claims.ExpiresAt()) {
		return nil, ErrExpiredToken
	}

	if parsed.Method == nil || parsed.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, ErrInvalidSignature
	}
	sig, err := tc.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, tc.secret); err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &claims, nil
}

func encodeSegment(seg []byte) string {
	return base64.RawURLEncoding.EncodeToString(seg)
}
