package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/emails"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials is returned for any failed login, whether or not the account exists.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrAccountNotFound indicates that no account matched the lookup.
	ErrAccountNotFound = errors.New("users: account not found")
	// ErrInvalidAccount indicates that provisioning input was incomplete.
	ErrInvalidAccount = errors.New("users: invalid account")
)

// ServiceConfig describes the dependencies required for account resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	HashCost int
}

// Service reads and provisions portal accounts.
type Service struct {
	db        *gorm.DB
	now       func() time.Time
	logger    *zap.Logger
	hashCost  int
	dummyHash []byte
	compare   func(hash, password []byte) error
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	// Unknown accounts are compared against this hash so both failure paths pay the bcrypt cost.
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("stagetrack-unknown-account"), cost)
	if err != nil {
		return nil, fmt.Errorf("users: dummy hash: %w", err)
	}
	return &Service{
		db:        cfg.Database,
		now:       clock,
		logger:    logger,
		hashCost:  cost,
		dummyHash: dummyHash,
		compare:   bcrypt.CompareHashAndPassword,
	}, nil
}

// FindByID loads an account by its surrogate key.
func (s *Service) FindByID(ctx context.Context, id uint) (Account, error) {
	if id == 0 {
		return Account{}, ErrAccountNotFound
	}
	return s.first(ctx, "id = ?", id)
}

// FindByEmail loads an account by email, compared case-insensitively.
func (s *Service) FindByEmail(ctx context.Context, email string) (Account, error) {
	normalized := strings.ToLower(normalize(email))
	if normalized == "" {
		return Account{}, ErrAccountNotFound
	}
	return s.first(ctx, "LOWER(email) = ?", normalized)
}

// FindByLogin loads an account by login name.
func (s *Service) FindByLogin(ctx context.Context, login string) (Account, error) {
	trimmed := normalize(login)
	if trimmed == "" {
		return Account{}, ErrAccountNotFound
	}
	return s.first(ctx, "login = ?", trimmed)
}

// Authenticate verifies a login-or-email and password pair. Email-shaped input is looked
// up by email first and then by login.
func (s *Service) Authenticate(ctx context.Context, loginOrEmail, password string) (Account, error) {
	input := normalize(loginOrEmail)
	if input == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}

	var (
		account Account
		err     error = ErrAccountNotFound
	)
	if emails.Valid(input) {
		account, err = s.FindByEmail(ctx, input)
	}
	if errors.Is(err, ErrAccountNotFound) {
		account, err = s.FindByLogin(ctx, input)
	}
	if errors.Is(err, ErrAccountNotFound) {
		_ = s.compare(s.dummyHash, []byte(password))
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}

	if err := s.compare([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// CreateParams describes a new account.
type CreateParams struct {
	Login        string
	Email        string
	DisplayName  string
	Password     string
	Capabilities []string
}

// Create provisions an account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, params CreateParams) (Account, error) {
	login := normalize(params.Login)
	email := strings.ToLower(normalize(params.Email))
	if login == "" || !emails.Valid(email) || params.Password == "" {
		return Account{}, ErrInvalidAccount
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.hashCost)
	if err != nil {
		return Account{}, err
	}
	now := s.now().UTC()
	account := Account{
		Login:        login,
		Email:        email,
		DisplayName:  normalize(params.DisplayName),
		PasswordHash: string(hash),
		Capabilities: append([]string{}, params.Capabilities...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		s.logger.Error("account insert failed", zap.String("login", login), zap.Error(err))
		return Account{}, err
	}
	return account, nil
}

// GrantCapability adds capability to the account identified by loginOrEmail.
func (s *Service) GrantCapability(ctx context.Context, loginOrEmail, capability string) (Account, error) {
	capability = normalize(capability)
	if capability == "" {
		return Account{}, ErrInvalidAccount
	}
	account, err := s.FindByLogin(ctx, loginOrEmail)
	if errors.Is(err, ErrAccountNotFound) {
		account, err = s.FindByEmail(ctx, loginOrEmail)
	}
	if err != nil {
		return Account{}, err
	}
	for _, existing := range account.Capabilities {
		if existing == capability {
			return account, nil
		}
	}
	account.Capabilities = append(account.Capabilities, capability)
	account.UpdatedAt = s.now().UTC()
	if err := s.db.WithContext(ctx).Save(&account).Error; err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *Service) first(ctx context.Context, query string, args ...interface{}) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where(query, args...).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		s.logger.Error("account lookup failed", zap.Error(err))
		return Account{}, err
	}
	return account, nil
}
