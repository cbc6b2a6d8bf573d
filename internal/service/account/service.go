package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/crypto"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/pkg/numrange"
)

// ErrNoAccounts is returned when a user range resolves to zero stored accounts.
var ErrNoAccounts = errors.New("account: no accounts resolved for range")

// Service resolves the stored platform accounts a simulation drives.
// Passwords are encrypted at rest and only decrypted on resolution.
type Service struct {
	repo   repository.AccountRepository
	secret string
	log    *slog.Logger
	now    func() time.Time
}

// New creates an account service.
func New(repo repository.AccountRepository, encryptionSecret string, logger *slog.Logger) *Service {
	return &Service{repo: repo, secret: encryptionSecret, log: logger, now: time.Now}
}

// CreateAccount stores an account with its password encrypted.
func (s *Service) CreateAccount(ctx context.Context, server string, index int, creds domain.Credentials, isAdmin bool) (*domain.ArtemisAccount, error) {
	encrypted, err := crypto.EncryptString(s.secret, creds.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypt password: %w", err)
	}
	account := &domain.ArtemisAccount{
		ID:           uuid.NewString(),
		Server:       server,
		AccountIndex: index,
		Username:     creds.Username,
		Password:     encrypted,
		IsAdmin:      isAdmin,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// CreateAccountsFromPattern stores one account per index in the range,
// deriving usernames from a printf-style pattern such as "student_%d".
func (s *Service) CreateAccountsFromPattern(ctx context.Context, server, usernamePattern, passwordPattern, rangeStr string) (int, error) {
	indexes, err := numrange.Parse(rangeStr)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, index := range indexes {
		creds := domain.Credentials{
			Username: fmt.Sprintf(usernamePattern, index),
			Password: fmt.Sprintf(passwordPattern, index),
		}
		if _, err := s.CreateAccount(ctx, server, index, creds, false); err != nil {
			s.log.Warn("account creation failed", "server", server, "index", index, "error", err)
			continue
		}
		created++
	}
	return created, nil
}

// ResolveUsers returns the decrypted credentials for a simulation's user
// range, ordered by account index. When the simulation does not customize
// the range, indexes 1..NumberOfUsers are used.
func (s *Service) ResolveUsers(ctx context.Context, simulation *domain.Simulation) ([]domain.Credentials, error) {
	rangeStr := simulation.UserRange
	if !simulation.CustomizeUserRange {
		rangeStr = fmt.Sprintf("1-%d", simulation.NumberOfUsers)
	}
	indexes, err := numrange.Parse(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("resolve user range %q: %w", rangeStr, err)
	}

	accounts, err := s.repo.ListAccountsByIndexes(ctx, simulation.Server, indexes)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	credentials := make([]domain.Credentials, 0, len(accounts))
	for _, account := range accounts {
		password, err := crypto.DecryptToString(s.secret, account.Password)
		if err != nil {
			return nil, fmt.Errorf("decrypt password of %s: %w", account.Username, err)
		}
		credentials = append(credentials, domain.Credentials{Username: account.Username, Password: password})
	}
	return credentials, nil
}

// AdminCredentials returns the decrypted admin account of a server.
func (s *Service) AdminCredentials(ctx context.Context, server string) (*domain.Credentials, error) {
	account, err := s.repo.GetAdminAccount(ctx, server)
	if err != nil {
		return nil, err
	}
	password, err := crypto.DecryptToString(s.secret, account.Password)
	if err != nil {
		return nil, fmt.Errorf("decrypt admin password: %w", err)
	}
	return &domain.Credentials{Username: account.Username, Password: password}, nil
}

// DeleteAccount removes a stored account.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	return s.repo.DeleteAccount(ctx, id)
}
