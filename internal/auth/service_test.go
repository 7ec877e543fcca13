package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/stockroom-backend/internal/admins"
	pkgAuth "github.com/angelmondragon/stockroom-backend/pkg/auth"
	"github.com/angelmondragon/stockroom-backend/pkg/auth/session"
	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/security"
	"github.com/google/uuid"
)

var testJWT = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "stockroom",
	ExpirationMinutes: 30,
}

type stubSessionManager struct {
	sessions map[string]*session.Session
	seq      int
	startErr error
}

func newStubSessionManager() *stubSessionManager {
	return &stubSessionManager{sessions: map[string]*session.Session{}}
}

func (s *stubSessionManager) Start(_ context.Context, adminID uuid.UUID, email, name string) (*session.Session, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.store(adminID, email, name), nil
}

func (s *stubSessionManager) Rotate(_ context.Context, oldAccessID, provided string) (*session.Session, error) {
	current, ok := s.sessions[oldAccessID]
	if !ok || current.RefreshToken != provided {
		return nil, session.ErrInvalidRefreshToken
	}
	delete(s.sessions, oldAccessID)
	return s.store(current.AdminID, current.Email, current.Name), nil
}

func (s *stubSessionManager) Revoke(_ context.Context, accessID string) error {
	delete(s.sessions, accessID)
	return nil
}

func (s *stubSessionManager) store(adminID uuid.UUID, email, name string) *session.Session {
	s.seq++
	sess := &session.Session{
		AccessID:     session.NewAccessID(),
		AdminID:      adminID,
		Email:        email,
		Name:         name,
		RefreshToken: "refresh-" + string(rune('a'+s.seq)),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	s.sessions[sess.AccessID] = sess
	return sess
}

type authEnv struct {
	client   *db.Client
	repo     *admins.Repository
	sessions *stubSessionManager
	svc      Service
}

func newAuthEnv(t *testing.T, passwordCfg config.PasswordConfig) *authEnv {
	t.Helper()
	client := dbtest.Client(t)
	repo := admins.NewRepository(client.DB())
	sessions := newStubSessionManager()
	svc, err := NewService(ServiceParams{
		AdminRepo:      repo,
		SessionManager: sessions,
		JWTConfig:      testJWT,
		PasswordConfig: passwordCfg,
		Logger:         logger.New(logger.Options{Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &authEnv{client: client, repo: repo, sessions: sessions, svc: svc}
}

func (e *authEnv) seedAdmin(t *testing.T, email, password string, cfg config.PasswordConfig) uuid.UUID {
	t.Helper()
	hash, err := security.HashPassword(password, cfg)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin, err := e.repo.Create(context.Background(), admins.CreateAdminDTO{Email: email, Name: "Ana Admin", PasswordHash: hash})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return admin.ID
}

func TestLoginIssuesTokenBackedBySession(t *testing.T) {
	env := newAuthEnv(t, config.PasswordConfig{})
	id := env.seedAdmin(t, "ana@example.com", "s3cret-pass", config.PasswordConfig{})

	resp, err := env.svc.Login(context.Background(), LoginRequest{Email: "  ANA@example.com ", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.AdminID != id || claims.Role != enums.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, ok := env.sessions.sessions[claims.ID]; !ok {
		t.Fatalf("expected session keyed by jti %s", claims.ID)
	}
	if resp.RefreshToken == "" || resp.Admin == nil || resp.Admin.Email != "ana@example.com" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	stored, err := env.repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load admin: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newAuthEnv(t, config.PasswordConfig{})
	env.seedAdmin(t, "ana@example.com", "s3cret-pass", config.PasswordConfig{})

	cases := []LoginRequest{
		{Email: "ana@example.com", Password: "wrong"},
		{Email: "nobody@example.com", Password: "s3cret-pass"},
		{Email: "", Password: "s3cret-pass"},
		{Email: "ana@example.com", Password: ""},
	}
	for _, req := range cases {
		_, err := env.svc.Login(context.Background(), req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %+v, got %v", req, err)
		}
	}
	if len(env.sessions.sessions) != 0 {
		t.Fatalf("failed logins must not open sessions")
	}
}

func TestLoginSessionStoreFailure(t *testing.T) {
	env := newAuthEnv(t, config.PasswordConfig{})
	env.seedAdmin(t, "ana@example.com", "s3cret-pass", config.PasswordConfig{})
	env.sessions.startErr = errors.New("redis down")

	_, err := env.svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "s3cret-pass"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestLoginRehashesOutdatedPassword(t *testing.T) {
	current := config.PasswordConfig{ArgonTime: 2}
	env := newAuthEnv(t, current)
	id := env.seedAdmin(t, "ana@example.com", "s3cret-pass", config.PasswordConfig{ArgonTime: 1})

	if _, err := env.svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "s3cret-pass"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	stored, err := env.repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load admin: %v", err)
	}
	if security.NeedsRehash(stored.PasswordHash, current) {
		t.Fatalf("expected hash to be upgraded")
	}
	if ok, err := security.VerifyPassword("s3cret-pass", stored.PasswordHash); err != nil || !ok {
		t.Fatalf("upgraded hash must still verify: %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	env := newAuthEnv(t, config.PasswordConfig{})
	env.seedAdmin(t, "ana@example.com", "s3cret-pass", config.PasswordConfig{})
	login, err := env.svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := env.svc.Refresh(context.Background(), RefreshRequest{AccessToken: login.AccessToken, RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken || refreshed.AccessToken == login.AccessToken {
		t.Fatalf("expected a new token pair")
	}

	_, err = env.svc.Refresh(context.Background(), RefreshRequest{AccessToken: login.AccessToken, RefreshToken: login.RefreshToken})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected the old refresh token to be rejected, got %v", err)
	}

	_, err = env.svc.Refresh(context.Background(), RefreshRequest{AccessToken: "not-a-jwt", RefreshToken: refreshed.RefreshToken})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected malformed access token to be rejected, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newAuthEnv(t, config.PasswordConfig{})
	env.seedAdmin(t, "ana@example.com", "s3cret-pass", config.PasswordConfig{})
	login, err := env.svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, login.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}

	if err := env.svc.Logout(context.Background(), claims.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(env.sessions.sessions) != 0 {
		t.Fatalf("expected session to be revoked")
	}
	if err := env.svc.Logout(context.Background(), ""); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for blank session id, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error without dependencies")
	}
}

func TestRegisterCreatesAdmin(t *testing.T) {
	client := dbtest.Client(t)
	svc, err := NewRegisterService(RegisterServiceParams{DB: client})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}

	created, err := svc.Register(context.Background(), RegisterRequest{Name: " Ana ", Email: "Ana@Example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Email != "ana@example.com" || created.Name != "Ana" {
		t.Fatalf("unexpected admin: %+v", created)
	}

	stored, err := admins.NewRepository(client.DB()).FindByEmail(context.Background(), "ANA@example.com")
	if err != nil {
		t.Fatalf("find admin: %v", err)
	}
	if ok, err := security.VerifyPassword("s3cret-pass", stored.PasswordHash); err != nil || !ok {
		t.Fatalf("expected stored hash to verify")
	}

	_, err = svc.Register(context.Background(), RegisterRequest{Name: "Other", Email: "ana@example.com", Password: "another-pass"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, err := NewRegisterService(RegisterServiceParams{DB: dbtest.Client(t)})
	if err != nil {
		t.Fatalf("new register service: %v", err)
	}
	for _, req := range []RegisterRequest{
		{Name: "Ana", Email: "", Password: "s3cret-pass"},
		{Name: " ", Email: "ana@example.com", Password: "s3cret-pass"},
		{Name: "Ana", Email: "ana@example.com", Password: "short"},
	} {
		if _, err := svc.Register(context.Background(), req); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
	if _, err := NewRegisterService(RegisterServiceParams{}); err == nil {
		t.Fatal("expected error without db")
	}
}
