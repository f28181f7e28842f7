package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wordbento/internal/domain"
	"wordbento/internal/infra"
	"wordbento/internal/sqlinline"
)

// Store is the relational source of truth for caller credentials. It
// implements domain.CredentialRepository.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Active returns the caller's active credential for platform, or nil when none exists.
func (s *Store) Active(ctx context.Context, callerID, platform string) (*domain.Credential, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectActiveCredential, callerID, platform)
	var cred domain.Credential
	if err := row.Scan(&cred.CallerID, &cred.Platform, &cred.Endpoint, &cred.Token, &cred.Model, &cred.Active); err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	cred = normalize(cred)
	return &cred, nil
}

// Save upserts the credential for its (caller, platform) pair.
func (s *Store) Save(ctx context.Context, cred domain.Credential) error {
	cred = normalize(cred)
	if cred.CallerID == "" {
		return errors.New("credentials: caller id is required")
	}
	if cred.Platform == "" {
		return errors.New("credentials: platform is required")
	}
	if cred.Endpoint == "" || cred.Token == "" {
		return errors.New("credentials: endpoint and token are required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertCredential,
		cred.CallerID, cred.Platform, cred.Endpoint, cred.Token, cred.Model, cred.Active)
	if err != nil {
		return fmt.Errorf("credentials: upsert: %w", err)
	}
	return nil
}

// List returns every credential row of the caller ordered by platform.
func (s *Store) List(ctx context.Context, callerID string) ([]domain.Credential, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListCredentials, callerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Credential
	for rows.Next() {
		var cred domain.Credential
		if err := rows.Scan(&cred.CallerID, &cred.Platform, &cred.Endpoint, &cred.Token, &cred.Model, &cred.Active); err != nil {
			return nil, err
		}
		out = append(out, normalize(cred))
	}
	return out, rows.Err()
}

func normalize(cred domain.Credential) domain.Credential {
	cred.CallerID = strings.TrimSpace(cred.CallerID)
	cred.Platform = strings.ToLower(strings.TrimSpace(cred.Platform))
	cred.Endpoint = strings.TrimRight(strings.TrimSpace(cred.Endpoint), "/")
	cred.Token = strings.TrimSpace(cred.Token)
	cred.Model = strings.TrimSpace(cred.Model)
	return cred
}

var _ domain.CredentialRepository = (*Store)(nil)
