package security

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/golang-jwt/jwt"
)

var (
	errUnexpectedAlg   = errors.New("unexpected signing method")
	errInvalidIssuer   = errors.New("invalid issuer")
	errInvalidAudience = errors.New("invalid audience")
	errTokenExpired    = errors.New("token expired or not yet valid")
	errInvalidSubject  = errors.New("invalid subject")
)

type AccessClaims struct {
	jwt.StandardClaims // Issuer, Audience, ExpiresAt, NotBefore, IssuedAt, Subject
}

// Verifier проверяет access token, выпущенный auth-service (RS256).
type Verifier struct {
	public    *rsa.PublicKey
	issuer    string
	audience  string
	clockSkew time.Duration
	now       func() time.Time
}

func NewVerifier(public *rsa.PublicKey, issuer, audience string, clockSkew time.Duration) *Verifier {
	return &Verifier{
		public:    public,
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		now:       time.Now,
	}
}

// Verify возвращает пользователя из sub. Любая ошибка проверки — ErrInvalidCredential.
func (v *Verifier) Verify(_ context.Context, token string) (domain.UserID, error) {
	if token == "" {
		return 0, domain.ErrMissingCredential
	}
	claims, err := v.ParseAndValidate(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}
	id, err := SubjectAsUserID(claims)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}
	return id, nil
}

func (v *Verifier) ParseAndValidate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	p := &jwt.Parser{SkipClaimsValidation: true} // exp/nbf проверяем ниже с учётом clockSkew
	token, err := p.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok || t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, errUnexpectedAlg
		}
		return v.public, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errUnexpectedAlg
	}

	if !claims.VerifyIssuer(v.issuer, v.issuer != "") {
		return nil, errInvalidIssuer
	}
	if !claims.VerifyAudience(v.audience, v.audience != "") {
		return nil, errInvalidAudience
	}

	// временные клеймы с допуском clockSkew
	now := v.now()
	if claims.ExpiresAt == 0 {
		return nil, errTokenExpired
	}
	exp := time.Unix(claims.ExpiresAt, 0).Add(v.clockSkew)
	nbf := time.Unix(claims.NotBefore, 0).Add(-v.clockSkew)
	if now.Before(nbf) || now.After(exp) {
		return nil, errTokenExpired
	}

	return claims, nil
}

// SubjectAsUserID парсит sub в domain.UserID.
func SubjectAsUserID(claims *AccessClaims) (domain.UserID, error) {
	if claims == nil || claims.Subject == "" {
		return 0, errInvalidSubject
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidSubject
	}
	return domain.UserID(id), nil
}

// Signer выпускает access token. В сервисе чата используется только в тестах
// и в локальной разработке; в проде токены выдаёт auth-service.
type Signer struct {
	private  *rsa.PrivateKey
	issuer   string
	audience string
	ttl      time.Duration
}

func NewSigner(private *rsa.PrivateKey, issuer, audience string, ttl time.Duration) *Signer {
	return &Signer{private: private, issuer: issuer, audience: audience, ttl: ttl}
}

// SignAccessToken выпускает JWT с sub=userID и exp=now+ttl.
func (s *Signer) SignAccessToken(userID domain.UserID, now time.Time) (string, error) {
	claims := AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   strconv.FormatInt(int64(userID), 10),
			Issuer:    s.issuer,
			Audience:  s.audience,
			IssuedAt:  now.Unix(),
			NotBefore: now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.private)
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}

func LoadRSAPrivateKeyFromPEM(path string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pk, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not RSA private key")
	}
	return pk, nil
}
