package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	jwtAuth, err := New(&Config{Secret: "secret"})
	require.NoError(t, err)

	tok, err := NewToken(jwtAuth, time.Hour, "u1", false)
	assert.NoError(t, err)
	id, err := VerifyToken(jwtAuth, tok)
	assert.NoError(t, err)
	assert.Equal(t, Identity{UserId: "u1"}, id)

	tok, err = NewToken(jwtAuth, time.Hour, "root", true)
	assert.NoError(t, err)
	id, err = VerifyToken(jwtAuth, tok)
	assert.NoError(t, err)
	assert.True(t, id.Admin)

	_, err = NewToken(jwtAuth, time.Hour, "", false)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)
}

func TestTokenRejected(t *testing.T) {
	jwtAuth, err := New(&Config{Secret: "secret"})
	require.NoError(t, err)

	expired, err := NewToken(jwtAuth, -time.Hour, "u1", false)
	require.NoError(t, err)
	_, err = VerifyToken(jwtAuth, expired)
	assert.Error(t, err)

	other := jwtauth.New("HS256", []byte("other"), nil)
	forged, err := NewToken(other, time.Hour, "u1", true)
	require.NoError(t, err)
	_, err = VerifyToken(jwtAuth, forged)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	jwtAuth, err := New(&Config{Secret: "secret"})
	require.NoError(t, err)
	tok, err := NewToken(jwtAuth, time.Hour, "u1", false)
	require.NoError(t, err)

	var got Identity
	h := Authenticate(jwtAuth, func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", got.UserId)

	for _, header := range []string{"", "Bearer garbage", "Basic dTE6cHc="} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}
