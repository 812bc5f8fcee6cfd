package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func subjectEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, _ := Subject(r.Context())
		_, _ = w.Write([]byte(sub))
	})
}

func newTestAuth() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
		Issuer:     "nftstake",
		Audience:   "stakingd",
	}, nil)
}

func TestAuthenticatorPropagatesSubject(t *testing.T) {
	token, err := IssueToken(testSecret, TokenRequest{
		Subject: "stk1holder", Issuer: "nftstake", Audience: "stakingd", TTL: time.Minute,
	}, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/claim", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	newTestAuth().Middleware()(subjectEcho()).ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "stk1holder", res.Body.String())
}

func TestAuthenticatorRejects(t *testing.T) {
	now := time.Now()
	expired, err := IssueToken(testSecret, TokenRequest{Subject: "a", Issuer: "nftstake", Audience: "stakingd", TTL: time.Minute}, now.Add(-time.Hour))
	require.NoError(t, err)
	wrongAudience, err := IssueToken(testSecret, TokenRequest{Subject: "a", Issuer: "nftstake", Audience: "other"}, now)
	require.NoError(t, err)
	wrongSecret, err := IssueToken("another-secret", TokenRequest{Subject: "a", Issuer: "nftstake", Audience: "stakingd"}, now)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "a", "iss": "nftstake", "aud": "stakingd", "iat": now.Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	cases := map[string]string{
		"missing":  "",
		"scheme":   "Basic abc",
		"expired":  "Bearer " + expired,
		"audience": "Bearer " + wrongAudience,
		"secret":   "Bearer " + wrongSecret,
		"noexpiry": "Bearer " + noExpiry,
	}
	handler := newTestAuth().Middleware()(subjectEcho())
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/holders/x", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, http.StatusUnauthorized, res.Code)
		})
	}
}

func TestAuthenticatorEnforcesScopes(t *testing.T) {
	holderToken, err := IssueToken(testSecret, TokenRequest{Subject: "a", Issuer: "nftstake", Audience: "stakingd"}, time.Now())
	require.NoError(t, err)
	adminToken, err := IssueToken(testSecret, TokenRequest{Subject: "ops", Issuer: "nftstake", Audience: "stakingd", Scopes: []string{"stake:admin"}}, time.Now())
	require.NoError(t, err)

	handler := newTestAuth().Middleware("stake:admin")(subjectEcho())

	req := httptest.NewRequest(http.MethodPost, "/v1/config", nil)
	req.Header.Set("Authorization", "Bearer "+holderToken)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusForbidden, res.Code)

	req.Header.Set("Authorization", "Bearer "+adminToken)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestAuthenticatorDisabledUsesDevHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{DevSubjectHeader: "X-Stake-Holder"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/claim", nil)
	req.Header.Set("X-Stake-Holder", "stk1dev")
	res := httptest.NewRecorder()
	auth.Middleware()(subjectEcho()).ServeHTTP(res, req)
	require.Equal(t, "stk1dev", res.Body.String())
}

func TestIssueTokenValidation(t *testing.T) {
	_, err := IssueToken("", TokenRequest{Subject: "a"}, time.Now())
	require.Error(t, err)
	_, err = IssueToken(testSecret, TokenRequest{}, time.Now())
	require.Error(t, err)
}
