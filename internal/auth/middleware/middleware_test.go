package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-grades/internal/rbac"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("secret")
	tok, err := a.IssueJWT("s1", "student")
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "s1", c.Subject)
	assert.Equal(t, "student", c.Role)

	_, err = NewAuthService("other").Parse(tok)
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	a := NewAuthService("secret")
	a.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	tok, err := a.IssueJWT("s1", "student")
	require.NoError(t, err)

	_, err = NewAuthService("secret").Parse(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParse_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "x", Issuer: defaultIssuer}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewAuthService("secret").Parse(tok)
	assert.Error(t, err)
}

func TestJWTMiddleware_SetsPrincipal(t *testing.T) {
	a := NewAuthService("secret")
	var gotSub, gotRole string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = rbac.SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))

	tok, err := a.IssueJWT("t1", "teacher")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", gotSub)
	assert.Equal(t, "teacher", gotRole)

	for _, hdr := range []string{"", "Basic abc", "Bearer nope"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, hdr)
	}
}

func login(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	a := NewAuthService("secret")
	h := LoginHandler(a, LocalAccounts{Dev: true, AdminUser: "root", AdminPassHash: string(hash)})

	rec := login(h, `{"username":"amy","password":"amy","role":"student"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"student"`)

	rec = login(h, `{"username":"root","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"admin"`)
	assert.Contains(t, rec.Body.String(), `"permissions":["*"]`)

	assert.Equal(t, http.StatusUnauthorized, login(h, `{"username":"root","password":"root","role":"teacher"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(h, `{"username":"amy","password":"amy","role":"admin"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(h, `{"username":"amy","password":"bob","role":"student"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(h, `{`).Code)

	prod := LoginHandler(a, LocalAccounts{})
	assert.Equal(t, http.StatusUnauthorized, login(prod, `{"username":"amy","password":"amy","role":"student"}`).Code)
}
