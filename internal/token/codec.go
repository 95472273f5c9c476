package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
)

const (
	// Issuer and Audience are fixed claims stamped into every token and
	// verified on every parse.
	Issuer   = "taskflow-api"
	Audience = "taskflow-client"

	refreshTokenType = "refresh"
)

// AccessClaims is the claim set carried by access tokens.
type AccessClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set carried by refresh tokens. The Type field
// distinguishes them from access tokens; verification rejects anything else.
type RefreshClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// CodecConfig configures token issuance and verification.
type CodecConfig struct {
	Secret        string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// MaxTokenAge is a freshness ceiling measured from iat, enforced
	// independently of exp.
	MaxTokenAge time.Duration
}

// Codec signs and verifies JSON Web Tokens. Signing is pinned to HS256; any
// other algorithm is rejected during parsing.
type Codec struct {
	config CodecConfig
	now    func() time.Time
}

// NewCodec constructs a Codec. The refresh secret falls back to the access
// secret when unset.
func NewCodec(cfg CodecConfig) *Codec {
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.Secret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 7 * 24 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.MaxTokenAge <= 0 {
		cfg.MaxTokenAge = 7 * 24 * time.Hour
	}
	return &Codec{config: cfg, now: time.Now}
}

// Issue mints a signed access token for the given subject.
func (c *Codec) Issue(userID, email, role string) (string, error) {
	issuedAt := c.now().UTC()
	claims := &AccessClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.config.AccessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.config.Secret))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}
	return signed, nil
}

// Verify checks signature, issuer, audience, validity window and required
// claims as a single operation, then applies the freshness ceiling. Each
// failure kind maps to a distinct error from pkg/errors.
func (c *Codec) Verify(tokenString string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, c.accessKeyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrTokenMalformed, "")
	}

	// A validly signed token without subject identity is still rejected;
	// minimal forged-but-signed tokens must not pass.
	if claims.UserID == "" || claims.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrTokenMissingClaims, "")
	}

	if claims.IssuedAt != nil {
		if age := c.now().Sub(claims.IssuedAt.Time); age > c.config.MaxTokenAge {
			return nil, appErrors.Clone(appErrors.ErrTokenTooOld, "")
		}
	}

	return claims, nil
}

// VerifyOptional performs the same checks as Verify but never fails; it
// returns nil when the token is absent or invalid.
func (c *Codec) VerifyOptional(tokenString string) *AccessClaims {
	if tokenString == "" {
		return nil
	}
	claims, err := c.Verify(tokenString)
	if err != nil {
		return nil
	}
	return claims
}

// IssueRefresh mints a refresh token. Refresh tokens carry type=refresh and
// are signed with the refresh secret.
func (c *Codec) IssueRefresh(userID, email string) (string, error) {
	issuedAt := c.now().UTC()
	claims := &RefreshClaims{
		UserID: userID,
		Email:  email,
		Type:   refreshTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.config.RefreshTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.config.RefreshSecret))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign refresh token")
	}
	return signed, nil
}

// VerifyRefresh validates a refresh token, rejecting anything that does not
// carry type=refresh even when the signature is good.
func (c *Codec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, c.refreshKeyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(*RefreshClaims)
	if !ok || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrTokenMalformed, "")
	}
	if claims.Type != refreshTokenType {
		return nil, appErrors.Clone(appErrors.ErrTokenMalformed, "not a refresh token")
	}
	if claims.UserID == "" || claims.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrTokenMissingClaims, "")
	}

	return claims, nil
}

func (c *Codec) accessKeyFunc(t *jwt.Token) (interface{}, error) {
	return []byte(c.config.Secret), nil
}

func (c *Codec) refreshKeyFunc(t *jwt.Token) (interface{}, error) {
	return []byte(c.config.RefreshSecret), nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return appErrors.Clone(appErrors.ErrTokenExpired, "")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return appErrors.Clone(appErrors.ErrTokenNotYetValid, "")
	default:
		return appErrors.Wrap(err, appErrors.ErrTokenMalformed.Code, appErrors.ErrTokenMalformed.Status, appErrors.ErrTokenMalformed.Message)
	}
}
