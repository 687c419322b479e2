package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kasirinaja/checkout/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"manager": {
				Username:  "manager",
				Password:  "manager123",
				Role:      domain.RoleManager,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := legacyStore()

	manager := NewAuthManager("test-secret", time.Hour, "123456", store, zerolog.Nop())
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "manager", Password: "manager123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleManager {
		t.Fatalf("expected manager role, got %s", resp.Role)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
	if store.updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestCreateOperatorStoresPasswordHash(t *testing.T) {
	store := legacyStore()

	manager := NewAuthManager("test-secret", time.Hour, "123456", store, zerolog.Nop())
	operator, err := manager.CreateOperator(context.Background(), domain.OperatorCreateRequest{
		Username: "Barista",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create operator failed: %v", err)
	}
	if operator.Username != "barista" || operator.Role != domain.RoleCashier {
		t.Fatalf("unexpected operator %+v", operator)
	}

	saved, ok := store.users["barista"]
	if !ok {
		t.Fatalf("expected operator to be saved")
	}
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "barista", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed operator failed: %v", err)
	}

	if _, err := manager.CreateOperator(context.Background(), domain.OperatorCreateRequest{Username: "barista", Password: "pass1234"}); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}
	if _, err := manager.CreateOperator(context.Background(), domain.OperatorCreateRequest{Username: "owner", Password: "pass1234", Role: "admin"}); err == nil {
		t.Fatalf("expected unknown role to fail")
	}

	operators := manager.ListOperators(context.Background())
	if len(operators) != 2 || operators[0].Username != "barista" {
		t.Fatalf("unexpected operators %+v", operators)
	}
}

func TestInactiveOperatorCannotLogin(t *testing.T) {
	store := legacyStore()
	account := store.users["manager"]
	account.Active = false
	store.users["manager"] = account

	manager := NewAuthManager("test-secret", time.Hour, "123456", store, zerolog.Nop())
	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "manager", Password: "manager123"})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected inactive account error, got %v", err)
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	store := legacyStore()
	issuer := NewAuthManager("secret-a", time.Hour, "123456", store, zerolog.Nop())
	verifier := NewAuthManager("secret-b", time.Hour, "123456", store, zerolog.Nop())

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "manager", Password: "manager123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}
	actor, err := issuer.ParseToken(resp.AccessToken)
	if err != nil || actor.Username != "manager" {
		t.Fatalf("expected issuer to accept its own token, got %+v %v", actor, err)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, "654321", store, zerolog.Nop())

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}
