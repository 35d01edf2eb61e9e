package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-discovery/internal/auth"
)

type issuer struct {
	srv     *httptest.Server
	key     *rsa.PrivateKey
	fetches atomic.Int32
}

func newIssuer(t *testing.T) *issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	iss := &issuer{key: key}
	iss.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		iss.fetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kid": "k1",
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(iss.srv.Close)
	return iss
}

func (i *issuer) sign(t *testing.T, claims jwt.Claims, kid string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(i.key)
	require.NoError(t, err)
	return s
}

func (i *issuer) claims(sub string, ttl time.Duration) auth.Claims {
	now := time.Now()
	return auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    i.srv.URL,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
}

func TestVerifyTokenAcceptsValidToken(t *testing.T) {
	iss := newIssuer(t)
	v := auth.NewClerkVerifier(iss.srv.URL+"/", nil)

	claims, err := v.VerifyToken(context.Background(), iss.sign(t, iss.claims("user_1", time.Minute), "k1"))
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.Subject)

	_, err = v.VerifyToken(context.Background(), iss.sign(t, iss.claims("user_2", time.Minute), "k1"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), iss.fetches.Load(), "keys should be cached")
}

func TestVerifyTokenRejections(t *testing.T) {
	iss := newIssuer(t)
	v := auth.NewClerkVerifier(iss.srv.URL, nil)
	ctx := context.Background()

	_, err := v.VerifyToken(ctx, iss.sign(t, iss.claims("user_1", -time.Minute), "k1"))
	require.ErrorIs(t, err, auth.ErrTokenExpired)

	wrongIssuer := iss.claims("user_1", time.Minute)
	wrongIssuer.Issuer = "https://elsewhere.example"
	_, err = v.VerifyToken(ctx, iss.sign(t, wrongIssuer, "k1"))
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = v.VerifyToken(ctx, iss.sign(t, iss.claims("", time.Minute), "k1"))
	require.ErrorIs(t, err, auth.ErrMissingClaims)

	_, err = v.VerifyToken(ctx, iss.sign(t, iss.claims("user_1", time.Minute), "unknown"))
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, iss.claims("user_1", time.Minute))
	hmac.Header["kid"] = "k1"
	signed, err := hmac.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.VerifyToken(ctx, signed)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyTokenThrottlesUnknownKeyRefetch(t *testing.T) {
	iss := newIssuer(t)
	v := auth.NewClerkVerifier(iss.srv.URL, nil)
	ctx := context.Background()

	_, err := v.VerifyToken(ctx, iss.sign(t, iss.claims("user_1", time.Minute), "k1"))
	require.NoError(t, err)
	require.Equal(t, int32(1), iss.fetches.Load())

	for i := 0; i < 5; i++ {
		_, err := v.VerifyToken(ctx, iss.sign(t, iss.claims("user_1", time.Minute), "rotated"))
		require.ErrorIs(t, err, auth.ErrInvalidToken)
	}
	assert.Equal(t, int32(2), iss.fetches.Load(), "unknown kids should trigger a single refetch")

	_, err = v.VerifyToken(ctx, iss.sign(t, iss.claims("user_1", time.Minute), "k1"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), iss.fetches.Load())
}

func TestVerifyTokenSharesConcurrentFetch(t *testing.T) {
	iss := newIssuer(t)
	v := auth.NewClerkVerifier(iss.srv.URL, nil)
	token := iss.sign(t, iss.claims("user_1", time.Minute), "k1")

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = v.VerifyToken(context.Background(), token)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), iss.fetches.Load())
}

type stubVerifier struct{ sub string }

func (s stubVerifier) VerifyToken(_ context.Context, token string) (*auth.Claims, error) {
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: s.sub}}, nil
}

func TestMiddleware(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(auth.UserID(r.Context())))
	})

	tests := []struct {
		name     string
		opts     auth.MiddlewareOptions
		header   string
		wantCode int
		wantBody string
	}{
		{name: "valid token", opts: auth.MiddlewareOptions{Verifier: stubVerifier{sub: "user_1"}}, header: "Bearer good", wantCode: http.StatusOK, wantBody: "user_1"},
		{name: "bad token", opts: auth.MiddlewareOptions{Verifier: stubVerifier{sub: "user_1"}}, header: "Bearer bad", wantCode: http.StatusUnauthorized},
		{name: "missing header", opts: auth.MiddlewareOptions{Verifier: stubVerifier{sub: "user_1"}}, wantCode: http.StatusUnauthorized},
		{name: "dev user", opts: auth.MiddlewareOptions{DevUserID: "dev_user"}, wantCode: http.StatusOK, wantBody: "dev_user"},
		{name: "dev user does not mask bad token", opts: auth.MiddlewareOptions{Verifier: stubVerifier{}, DevUserID: "dev_user"}, header: "Bearer bad", wantCode: http.StatusUnauthorized},
		{name: "token without verifier", opts: auth.MiddlewareOptions{}, header: "Bearer good", wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			auth.Middleware(tt.opts)(echo).ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}
