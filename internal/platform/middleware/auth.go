package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/requestcontext"
)

// IssuerAuthenticator validates bearer tokens minted for issuers. The token
// subject carries the issuer id; onboarding (out of scope here) hands the
// token to the issuer after domain verification.
type IssuerAuthenticator struct {
	secret []byte
}

func NewIssuerAuthenticator(secret string) *IssuerAuthenticator {
	return &IssuerAuthenticator{secret: []byte(secret)}
}

// NewToken mints an HS256 bearer token for issuerID.
func (a *IssuerAuthenticator) NewToken(issuerID id.IssuerID, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   issuerID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, returning the issuer id
// from its subject.
func (a *IssuerAuthenticator) ValidateToken(tokenString string) (id.IssuerID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil {
		return id.IssuerID{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return id.IssuerID{}, fmt.Errorf("token has no subject")
	}
	issuerID, err := id.ParseIssuerID(claims.Subject)
	if err != nil {
		return id.IssuerID{}, fmt.Errorf("token subject is not an issuer id")
	}
	return issuerID, nil
}

// RequireIssuer rejects requests without a valid issuer bearer token and
// injects the issuer id into the request context.
func RequireIssuer(auth *IssuerAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			issuerID, err := auth.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithIssuerID(ctx, issuerID)))
		})
	}
}
