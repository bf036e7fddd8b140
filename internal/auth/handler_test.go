package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leela143-143/MUN/internal/authority"
	"github.com/Leela143-143/MUN/internal/membership"
	"github.com/Leela143-143/MUN/internal/models"
	"github.com/Leela143-143/MUN/pkg/response"
	"github.com/Leela143-143/MUN/pkg/utils"
)

type fakeUserStore struct {
	users map[string]*models.User
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

type fakeAllocator struct {
	roster     *models.CountryRoster
	rosterErr  error
	claimUser  *models.User
	claimErr   error
	lastParams membership.SignUpParams
	claims     int
}

func (f *fakeAllocator) SignUpClaim(_ context.Context, p membership.SignUpParams) (*models.User, error) {
	f.lastParams = p
	f.claims++
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return f.claimUser, nil
}

func (f *fakeAllocator) ListAvailable(_ context.Context, _ uuid.UUID) (*models.CountryRoster, error) {
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return f.roster, nil
}

type fakeAuthority struct {
	healRole   models.Role
	healErr    error
	setUser    *models.User
	setErr     error
	lastSet    models.Role
	lastTarget string
}

func (f *fakeAuthority) HealOwner(_ context.Context, user *models.User) (models.Role, error) {
	if f.healErr != nil {
		return "", f.healErr
	}
	if f.healRole != "" {
		return f.healRole, nil
	}
	return user.Role, nil
}

func (f *fakeAuthority) SetRole(_ context.Context, _ uuid.UUID, email string, role models.Role) (*models.User, error) {
	f.lastSet = role
	f.lastTarget = email
	if f.setErr != nil {
		return nil, f.setErr
	}
	return f.setUser, nil
}

func (f *fakeAuthority) ResolveRole(_ context.Context, _ uuid.UUID, _ string) (models.Role, error) {
	return models.RoleUser, nil
}

func newTestRouter(h *Handler, callerID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/login", h.Login)
	r.POST("/auth/signup", h.Signup)
	authed := r.Group("", func(c *gin.Context) {
		c.Set(ContextUserID, callerID)
		c.Next()
	})
	authed.POST("/auth/add-admin", h.AddAdmin)
	authed.POST("/auth/remove-admin", h.RemoveAdmin)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, response.Body) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var envelope response.Body
	_ = json.Unmarshal(w.Body.Bytes(), &envelope)
	return w, envelope
}

func testUser(email string, role models.Role, password string) *models.User {
	hash, _ := utils.HashPassword(password)
	return &models.User{ID: uuid.New(), Email: email, Name: "Test User", Role: role, Password: hash}
}

func TestLogin(t *testing.T) {
	user := testUser("citizen@example.com", models.RoleUser, "secret123")
	store := &fakeUserStore{users: map[string]*models.User{user.Email: user}}
	h := NewHandler(store, &fakeAllocator{}, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/login", gin.H{"email": user.Email, "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, envelope.Success)

	data := envelope.Data.(map[string]any)
	assert.Equal(t, "user", data["role"])
	assert.Equal(t, user.ID.String(), data["uid"])
	assert.NotEmpty(t, data["token"])
}

func TestLoginWrongPassword(t *testing.T) {
	user := testUser("citizen@example.com", models.RoleUser, "secret123")
	store := &fakeUserStore{users: map[string]*models.User{user.Email: user}}
	h := NewHandler(store, &fakeAllocator{}, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/login", gin.H{"email": user.Email, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid email or password", envelope.Error)
}

func TestLoginUnknownEmail(t *testing.T) {
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, &fakeAllocator{}, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, _ := doJSON(t, r, http.MethodPost, "/auth/login", gin.H{"email": "ghost@example.com", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginOwnerBootstrap(t *testing.T) {
	// The configured owner logs in with a stale stored role; the authority
	// heals it and the response reflects owner.
	owner := testUser("boss@example.com", models.RoleUser, "secret123")
	store := &fakeUserStore{users: map[string]*models.User{owner.Email: owner}}
	h := NewHandler(store, &fakeAllocator{}, &fakeAuthority{healRole: models.RoleOwner}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/login", gin.H{"email": owner.Email, "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	data := envelope.Data.(map[string]any)
	assert.Equal(t, "owner", data["role"])
}

func signupBody(communityID string) gin.H {
	return gin.H{
		"name":        "Delegate",
		"email":       "delegate@example.com",
		"password":    "secret123",
		"communityId": communityID,
		"country":     "Country1",
	}
}

func TestSignupMissingFields(t *testing.T) {
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, &fakeAllocator{}, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	body := signupBody(uuid.New().String())
	delete(body, "country")
	w, envelope := doJSON(t, r, http.MethodPost, "/auth/signup", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "All fields are required", envelope.Error)
}

func TestSignupCommunityNotFound(t *testing.T) {
	alloc := &fakeAllocator{rosterErr: membership.ErrCommunityNotFound}
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, alloc, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/signup", signupBody(uuid.New().String()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Community not found", envelope.Error)
	assert.Zero(t, alloc.claims, "no claim must be attempted")
}

func TestSignupCommunityFull(t *testing.T) {
	alloc := &fakeAllocator{roster: &models.CountryRoster{
		AvailableCountries: []string{},
		TotalCountries:     2,
		AssignedCountries:  []string{"Country1", "Country2"},
	}}
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, alloc, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/signup", signupBody(uuid.New().String()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No available countries in this community", envelope.Error)
}

func TestSignupCommunityFilledDuringClaim(t *testing.T) {
	// The precheck still saw a vacancy but the last slot went to a
	// concurrent signup before the claim transaction ran.
	alloc := &fakeAllocator{
		roster:   &models.CountryRoster{AvailableCountries: []string{"Country2"}, TotalCountries: 2, AssignedCountries: []string{"Country1"}},
		claimErr: membership.ErrCommunityFull,
	}
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, alloc, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/signup", signupBody(uuid.New().String()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No available countries in this community", envelope.Error)
}

func TestSignupEmailTaken(t *testing.T) {
	existing := testUser("delegate@example.com", models.RoleUser, "secret123")
	store := &fakeUserStore{users: map[string]*models.User{existing.Email: existing}}
	alloc := &fakeAllocator{roster: &models.CountryRoster{AvailableCountries: []string{"Country1"}, TotalCountries: 1}}
	h := NewHandler(store, alloc, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/signup", signupBody(uuid.New().String()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email already registered", envelope.Error)
}

func TestSignupCountryTaken(t *testing.T) {
	// The slot was claimed between page-load and submission: the claim
	// transaction loses the race and no user record is created.
	alloc := &fakeAllocator{
		roster:   &models.CountryRoster{AvailableCountries: []string{"Country2"}, TotalCountries: 2, AssignedCountries: []string{"Country1"}},
		claimErr: membership.ErrCountryTaken,
	}
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, alloc, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/signup", signupBody(uuid.New().String()))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Country is already taken", envelope.Error)
}

func TestSignupSuccess(t *testing.T) {
	communityID := uuid.New()
	country := "Country1"
	created := &models.User{
		ID: uuid.New(), Email: "delegate@example.com", Name: "Delegate",
		Role: models.RoleUser, CommunityID: &communityID, Country: &country,
	}
	alloc := &fakeAllocator{
		roster:    &models.CountryRoster{AvailableCountries: []string{"Country1"}, TotalCountries: 1},
		claimUser: created,
	}
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, alloc, &fakeAuthority{}, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.Nil)

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/signup", signupBody(communityID.String()))
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, envelope.Success)

	assert.Equal(t, communityID, alloc.lastParams.CommunityID)
	assert.Equal(t, "Country1", alloc.lastParams.Country)
	assert.NotEqual(t, "secret123", alloc.lastParams.PasswordHash, "password must be hashed before the claim")

	data := envelope.Data.(map[string]any)
	assert.Equal(t, created.ID.String(), data["uid"])
	assert.NotEmpty(t, data["token"])
}

func TestAddAdminForbidden(t *testing.T) {
	authz := &fakeAuthority{setErr: authority.ErrForbidden}
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, &fakeAllocator{}, authz, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.New())

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/add-admin", gin.H{"email": "target@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Only owner can add admins", envelope.Error)
}

func TestAddAdminUnknownUser(t *testing.T) {
	authz := &fakeAuthority{setErr: pgx.ErrNoRows}
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, &fakeAllocator{}, authz, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.New())

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/add-admin", gin.H{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", envelope.Error)
}

func TestAddAndRemoveAdmin(t *testing.T) {
	target := testUser("target@example.com", models.RoleAdmin, "pw")
	authz := &fakeAuthority{setUser: target}
	h := NewHandler(&fakeUserStore{users: map[string]*models.User{}}, &fakeAllocator{}, authz, NewJWTService("test-secret", 1), nil)
	r := newTestRouter(h, uuid.New())

	w, envelope := doJSON(t, r, http.MethodPost, "/auth/add-admin", gin.H{"email": "target@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, envelope.Success)
	assert.Equal(t, models.RoleAdmin, authz.lastSet)
	assert.Equal(t, "target@example.com", authz.lastTarget)

	w, _ = doJSON(t, r, http.MethodPost, "/auth/remove-admin", gin.H{"email": "target@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleUser, authz.lastSet)
}
