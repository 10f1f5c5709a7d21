package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sampler/internal/infra"
	"sampler/internal/sqlinline"
)

const (
	ProviderMusic  = "music"
	ProviderSearch = "search"
	ProviderChat   = "chat"
)

// Providers lists the integrations whose keys can be stored.
var Providers = []string{ProviderMusic, ProviderSearch, ProviderChat}

// ProviderInfo describes a stored integration without exposing its token.
type ProviderInfo struct {
	Provider  string    `json:"provider"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// KeyOrEnv prefers the stored token and falls back to the configured value.
func (s *Store) KeyOrEnv(ctx context.Context, provider, fallback string) (string, error) {
	if s == nil {
		return strings.TrimSpace(fallback), nil
	}
	token, err := s.Token(ctx, provider)
	if err != nil {
		return "", err
	}
	if token == "" {
		return strings.TrimSpace(fallback), nil
	}
	return token, nil
}

// SetToken stores token for provider. props are merged into existing properties.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !knownProvider(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, token, props)
}

// ListProviders returns the providers that have a stored token.
func (s *Store) ListProviders(ctx context.Context) ([]ProviderInfo, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListIntegrationProviders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProviderInfo
	for rows.Next() {
		var info ProviderInfo
		if err := rows.Scan(&info.Provider, &info.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

func knownProvider(p string) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}
