package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"kasirkredit/backend/internal/domain"
)

const (
	tokenIssuer      = "kasirkredit"
	userStoreTimeout = 3 * time.Second

	roleAdmin   = "admin"
	roleCashier = "cashier"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
	errUnscopedToken      = errors.New("token is not scoped to a store")
)

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
	// ManagerPIN authorizes credit voids. It is kept only as a bcrypt hash.
	ManagerPIN string
	// DefaultStoreID scopes accounts stored without a store.
	DefaultStoreID string
}

// AuthManager authenticates collectors and administrators and issues access
// tokens scoped to the store they work in. The store claim decides where new
// credits, debt summaries and audit entries land.
type AuthManager struct {
	secret       []byte
	tokenTTL     time.Duration
	pinHash      []byte
	defaultStore string
	accounts     UserStore
	log          logrus.FieldLogger

	mu    sync.RWMutex
	known map[string]domain.UserAccount
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role    string `json:"role"`
	StoreID string `json:"store_id"`
}

func NewAuthManager(cfg AuthConfig, accounts UserStore) *AuthManager {
	if cfg.Secret == "" {
		cfg.Secret = "dev-change-me"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 8 * time.Hour
	}
	if cfg.DefaultStoreID == "" {
		cfg.DefaultStoreID = "main-store"
	}

	manager := &AuthManager{
		secret:       []byte(cfg.Secret),
		tokenTTL:     cfg.TokenTTL,
		defaultStore: cfg.DefaultStoreID,
		accounts:     accounts,
		log:          logrus.WithField("component", "auth"),
		known:        make(map[string]domain.UserAccount),
	}
	if pin := strings.TrimSpace(cfg.ManagerPIN); pin != "" {
		if hashed, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost); err == nil {
			manager.pinHash = hashed
		}
	}
	manager.refresh(context.Background())
	return manager
}

// Authenticate checks a username and password and returns the actor the
// session will act as.
func (a *AuthManager) Authenticate(ctx context.Context, req domain.LoginRequest) (domain.Actor, error) {
	a.refresh(ctx)
	username := normalizeUsername(req.Username)

	a.mu.RLock()
	account, ok := a.known[username]
	a.mu.RUnlock()
	if !ok || !verifyPassword(account.Password, req.Password) {
		return domain.Actor{}, errInvalidCredentials
	}
	if !account.Active {
		return domain.Actor{}, errInactiveAccount
	}
	return domain.Actor{Username: username, Role: account.Role, StoreID: account.StoreID}, nil
}

// Issue signs an access token for actor.
func (a *AuthManager) Issue(actor domain.Actor) (string, time.Time, error) {
	if actor.StoreID == "" {
		return "", time.Time{}, errUnscopedToken
	}
	now := time.Now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.Username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role:    actor.Role,
		StoreID: actor.StoreID,
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses an access token. Tokens without a store claim are refused.
func (a *AuthManager) Verify(raw string) (domain.Actor, error) {
	claims := &accessClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithIssuer(tokenIssuer), jwtlib.WithExpirationRequired())
	if err != nil {
		return domain.Actor{}, errInvalidToken
	}
	if claims.Subject == "" {
		return domain.Actor{}, errInvalidToken
	}
	if claims.StoreID == "" {
		return domain.Actor{}, errUnscopedToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role, StoreID: claims.StoreID}, nil
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	pin = strings.TrimSpace(pin)
	if pin == "" || len(a.pinHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.pinHash, []byte(pin)) == nil
}

// CreateCashier registers a collector. The account joins the admin's store
// unless the request names another one.
func (a *AuthManager) CreateCashier(ctx context.Context, admin domain.Actor, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	a.refresh(ctx)
	username := normalizeUsername(req.Username)
	switch {
	case len(username) < 4:
		return domain.CashierUser{}, fmt.Errorf("username must be at least 4 characters")
	case strings.ContainsAny(username, " \t\r\n"):
		return domain.CashierUser{}, fmt.Errorf("username must not contain spaces")
	case len(strings.TrimSpace(req.Password)) < 6:
		return domain.CashierUser{}, fmt.Errorf("password must be at least 6 characters")
	}

	a.mu.RLock()
	_, exists := a.known[username]
	a.mu.RUnlock()
	if exists {
		return domain.CashierUser{}, fmt.Errorf("username already exists")
	}

	storeID := strings.TrimSpace(req.StoreID)
	if storeID == "" {
		storeID = admin.StoreID
	}
	if storeID == "" {
		storeID = a.defaultStore
	}
	hashed, err := hashPassword(req.Password)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("failed to hash password")
	}
	account := domain.UserAccount{
		Username:  username,
		Password:  hashed,
		Role:      roleCashier,
		StoreID:   storeID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if a.accounts != nil {
		storeCtx, cancel := context.WithTimeout(ctx, userStoreTimeout)
		defer cancel()
		if err := a.accounts.CreateUser(storeCtx, account); err != nil {
			return domain.CashierUser{}, err
		}
	}

	a.mu.Lock()
	a.known[username] = account
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{"username": username, "store_id": storeID, "created_by": admin.Username}).Info("cashier account created")
	return cashierView(account), nil
}

// ListCashiers returns the collectors of one store, sorted by username.
func (a *AuthManager) ListCashiers(ctx context.Context, storeID string) []domain.CashierUser {
	a.refresh(ctx)
	a.mu.RLock()
	result := make([]domain.CashierUser, 0, len(a.known))
	for _, account := range a.known {
		if account.Role != roleCashier || account.StoreID != storeID {
			continue
		}
		result = append(result, cashierView(account))
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// refresh reloads accounts from the user store. Accounts without a store are
// placed in the default store and plain-text passwords are rehashed.
func (a *AuthManager) refresh(ctx context.Context) {
	if a.accounts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, userStoreTimeout)
	defer cancel()

	accounts, err := a.accounts.ListUsers(ctx)
	if err != nil {
		a.log.WithError(err).Warn("failed to load user accounts")
		return
	}

	loaded := make(map[string]domain.UserAccount, len(accounts))
	for _, account := range accounts {
		account.Username = normalizeUsername(account.Username)
		if account.Username == "" {
			continue
		}
		if account.StoreID == "" {
			account.StoreID = a.defaultStore
		}
		if !isPasswordHash(account.Password) {
			hashed, err := hashPassword(account.Password)
			if err != nil {
				continue
			}
			account.Password = hashed
			if err := a.accounts.UpdateUserPassword(ctx, account.Username, hashed); err != nil {
				a.log.WithError(err).WithField("username", account.Username).Warn("failed to upgrade plain-text password")
			}
		}
		loaded[account.Username] = account
	}

	a.mu.Lock()
	for username, account := range loaded {
		a.known[username] = account
	}
	a.mu.Unlock()
}

func cashierView(account domain.UserAccount) domain.CashierUser {
	return domain.CashierUser{
		Username:  account.Username,
		Role:      account.Role,
		StoreID:   account.StoreID,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func verifyPassword(stored string, input string) bool {
	if strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
