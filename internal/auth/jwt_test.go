package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "hookqueue"
	testAudience = "hookqueue-api"
)

func newTestKeys(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshaling public key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemBytes)
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func TestNewJWTValidator(t *testing.T) {
	_, pubPEM := newTestKeys(t)

	tests := []struct {
		name    string
		pem     string
		wantErr bool
	}{
		{name: "valid PKIX public key", pem: pubPEM, wantErr: false},
		{name: "not PEM at all", pem: "garbage", wantErr: true},
		{name: "empty", pem: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJWTValidator(tt.pem, testIssuer, testAudience)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewJWTValidator() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	key, pubPEM := newTestKeys(t)
	v, err := NewJWTValidator(pubPEM, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("NewJWTValidator() error = %v", err)
	}

	otherKey, _ := newTestKeys(t)

	tests := []struct {
		name    string
		token   string
		wantSub string
		wantErr bool
	}{
		{
			name:    "valid token",
			token:   signToken(t, key, validClaims()),
			wantSub: "user-1",
		},
		{
			name: "wrong issuer",
			token: signToken(t, key, jwt.MapClaims{
				"iss": "someone-else", "aud": testAudience, "sub": "user-1",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "wrong audience",
			token: signToken(t, key, jwt.MapClaims{
				"iss": testIssuer, "aud": "other-api", "sub": "user-1",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "missing subject",
			token: signToken(t, key, jwt.MapClaims{
				"iss": testIssuer, "aud": testAudience,
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "expired token",
			token: signToken(t, key, jwt.MapClaims{
				"iss": testIssuer, "aud": testAudience, "sub": "user-1",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name:    "signed with wrong key",
			token:   signToken(t, otherKey, validClaims()),
			wantErr: true,
		},
		{
			name:    "not a token",
			token:   "abc.def.ghi",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := v.ValidateToken(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && sub != tt.wantSub {
				t.Errorf("ValidateToken() sub = %q, want %q", sub, tt.wantSub)
			}
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	key, pubPEM := newTestKeys(t)
	v, err := NewJWTValidator(pubPEM, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("NewJWTValidator() error = %v", err)
	}

	var gotSub string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := v.HTTPMiddleware(next)

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
		wantSub    string
	}{
		{
			name:       "valid bearer token",
			path:       "/v1/jobs",
			authHeader: "Bearer " + signToken(t, key, validClaims()),
			wantStatus: http.StatusOK,
			wantSub:    "user-1",
		},
		{
			name:       "missing header",
			path:       "/v1/jobs",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not bearer format",
			path:       "/v1/jobs",
			authHeader: "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			path:       "/v1/jobs",
			authHeader: "Bearer nope",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "healthz bypasses auth",
			path:       "/healthz",
			wantStatus: http.StatusOK,
		},
		{
			name:       "metrics bypasses auth",
			path:       "/metrics",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSub = ""
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantSub != "" && gotSub != tt.wantSub {
				t.Errorf("subject = %q, want %q", gotSub, tt.wantSub)
			}
		})
	}
}
