package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]*User{}} }

func (m *memUsers) Get(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, ErrInvalidCredentials
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrInvalidCredentials
}

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func newIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	ti, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	return ti
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("", "correct horse"))
}

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name string
		user User
		want error
	}{
		{"valid", User{Email: "a@example.com", Role: RoleViewer}, nil},
		{"missing email", User{Role: RoleViewer}, ErrInvalidEmail},
		{"display name form", User{Email: "A <a@example.com>", Role: RoleViewer}, ErrInvalidEmail},
		{"bad role", User{Email: "a@example.com", Role: "root"}, ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ti := newIssuer(t)
	u := &User{ID: "u1", Email: "a@example.com", Role: RoleEditor}

	token, exp, err := ti.Issue(u)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := ti.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, RoleEditor, claims.Role)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	ti := newIssuer(t)
	ti.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := ti.Issue(&User{ID: "u1", Role: RoleViewer})
	require.NoError(t, err)

	ti.now = time.Now
	_, err = ti.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsOtherSecretAndAlgorithm(t *testing.T) {
	ti := newIssuer(t)
	other, err := NewTokenIssuer("other-secret", time.Hour)
	require.NoError(t, err)

	token, _, err := other.Issue(&User{ID: "u1", Role: RoleViewer})
	require.NoError(t, err)
	_, err = ti.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    DefaultIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ti.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenIssuer_RequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	ti := newIssuer(t)
	token, _, err := ti.Issue(&User{ID: "u1", Email: "a@example.com", Role: RoleViewer})
	require.NoError(t, err)

	h := Middleware(ti)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(c.UserID()))
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no token", func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, http.StatusOK},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "u1", rec.Body.String())
			}
		})
	}
}

func TestService_MiddlewareUsesCurrentUser(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers()
	svc := NewService(users, newIssuer(t), nil)
	u, err := svc.CreateUser(ctx, "ed@example.com", "Ed", "longenough", RoleEditor)
	require.NoError(t, err)
	token, _, err := svc.Tokens().Issue(u)
	require.NoError(t, err)

	h := svc.Middleware()(RequireRole(RoleAdmin, RoleEditor)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send())

	users.mu.Lock()
	demoted := *users.users[u.ID]
	demoted.Role = RoleViewer
	users.users[u.ID] = &demoted
	users.mu.Unlock()
	assert.Equal(t, http.StatusForbidden, send(), "role comes from the store, not the token")

	users.mu.Lock()
	delete(users.users, u.ID)
	users.mu.Unlock()
	assert.Equal(t, http.StatusUnauthorized, send(), "deleted users lose access")
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireRole(RoleAdmin, RoleEditor)(ok)

	for role, want := range map[Role]int{
		RoleAdmin:  http.StatusNoContent,
		RoleEditor: http.StatusNoContent,
		RoleViewer: http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithClaims(req.Context(), &Claims{Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestService_LoginAndBootstrap(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemUsers(), newIssuer(t), nil)

	created, err := svc.Bootstrap(ctx, "Admin@Example.com", "supersecret")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Bootstrap(ctx, "other@example.com", "supersecret")
	require.NoError(t, err)
	assert.False(t, created, "bootstrap only runs on an empty user table")

	res, err := svc.Login(ctx, "ADMIN@example.com", "supersecret")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, RoleAdmin, res.User.Role)
	assert.Empty(t, res.User.PasswordHash)

	_, err = svc.Login(ctx, "admin@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "supersecret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	claims, err := svc.Tokens().Verify(res.Token)
	require.NoError(t, err)
	me, err := svc.Me(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", me.Email)
}

func TestService_CreateUserValidates(t *testing.T) {
	svc := NewService(newMemUsers(), newIssuer(t), nil)
	_, err := svc.CreateUser(context.Background(), "not-an-email", "", "longenough", RoleViewer)
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = svc.CreateUser(context.Background(), "a@example.com", "", "short", RoleViewer)
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	_, err = svc.CreateUser(context.Background(), "a@example.com", "", "longenough", Role(strings.ToUpper("admin")))
	assert.ErrorIs(t, err, ErrInvalidRole)
}
