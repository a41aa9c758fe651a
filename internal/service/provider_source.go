package service

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	apperrors "github.com/openclaw/oauth-bridge-go/internal/errors"
	"github.com/openclaw/oauth-bridge-go/internal/model"
	"github.com/openclaw/oauth-bridge-go/internal/provider"
	"github.com/openclaw/oauth-bridge-go/internal/repository"
	"github.com/openclaw/oauth-bridge-go/internal/secrets"
	"github.com/openclaw/oauth-bridge-go/internal/util"
)

// ProviderInfo is the public face of a provider, safe for login buttons.
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Sort        int    `json:"sort"`
}

// ProviderSource reads stored provider configs and decrypts client secrets on the way out.
type ProviderSource struct {
	repo  repository.ProviderConfigRepository
	codec secrets.Codec
}

func NewProviderSource(repo repository.ProviderConfigRepository, codec secrets.Codec) *ProviderSource {
	return &ProviderSource{repo: repo, codec: codec}
}

func (s *ProviderSource) GetEnabledProvider(ctx context.Context, name string) (*provider.Config, error) {
	stored, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if stored == nil {
		return nil, apperrors.ProviderNotFound(name)
	}
	if !stored.Usable() {
		return nil, apperrors.ProviderDisabled(name)
	}

	secret, err := s.codec.Decrypt(stored.ClientSecret)
	if err != nil {
		log.Error().Err(err).Str("provider", name).Msg("failed to decrypt client secret")
		return nil, apperrors.Internal("Provider configuration is unreadable").WithCause(err)
	}

	extra := make(map[string]string, len(stored.ExtraConfig))
	for k, v := range stored.ExtraConfig {
		extra[k] = v
	}
	return &provider.Config{
		Name:         stored.Name,
		ClientID:     stored.ClientID,
		ClientSecret: secret,
		RedirectURI:  stored.RedirectURI,
		Scopes:       append([]string(nil), stored.Scopes...),
		Extra:        extra,
	}, nil
}

func (s *ProviderSource) ListProviders(ctx context.Context) ([]ProviderInfo, error) {
	stored, err := s.repo.ListEnabled(ctx)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	infos := make([]ProviderInfo, 0, len(stored))
	for _, p := range stored {
		infos = append(infos, ProviderInfo{Name: p.Name, DisplayName: p.DisplayName, Sort: p.Sort})
	}
	return infos, nil
}

// ProviderSeed is one entry of the providers file.
type ProviderSeed struct {
	Name         string            `yaml:"name"`
	DisplayName  string            `yaml:"display_name"`
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	RedirectURI  string            `yaml:"redirect_uri"`
	Scopes       []string          `yaml:"scopes"`
	ExtraConfig  map[string]string `yaml:"extra_config"`
	Enabled      *bool             `yaml:"enabled"`
	Status       string            `yaml:"status"`
	Sort         int               `yaml:"sort"`
	// Deleted retires the provider; the other fields are ignored.
	Deleted      bool              `yaml:"deleted"`
}

var providerStatuses = []string{string(model.ProviderStatusActive), string(model.ProviderStatusSuspended)}

type providerSeedFile struct {
	Providers []ProviderSeed `yaml:"providers"`
}

// LoadProviderSeeds reads a YAML providers file. ${VAR} references are expanded
// from the environment so secrets can stay out of the file.
func LoadProviderSeeds(path string) ([]ProviderSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return ParseProviderSeeds([]byte(os.ExpandEnv(string(data))))
}

func ParseProviderSeeds(data []byte) ([]ProviderSeed, error) {
	var file providerSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	for i, seed := range file.Providers {
		if !util.IsValidProviderName(seed.Name) {
			return nil, fmt.Errorf("providers[%d]: invalid name %q", i, seed.Name)
		}
		if seed.Deleted {
			continue
		}
		if seed.ClientID == "" || seed.ClientSecret == "" || seed.RedirectURI == "" {
			return nil, fmt.Errorf("providers[%d] %s: client_id, client_secret and redirect_uri are required", i, seed.Name)
		}
		if !util.IsValidEnum(seed.Status, providerStatuses) {
			return nil, fmt.Errorf("providers[%d] %s: invalid status %q", i, seed.Name, seed.Status)
		}
	}
	return file.Providers, nil
}

// Seed upserts providers, encrypting client secrets before they are stored.
func (s *ProviderSource) Seed(ctx context.Context, seeds []ProviderSeed) error {
	for _, seed := range seeds {
		if seed.Deleted {
			if err := s.repo.SoftDelete(ctx, seed.Name); err != nil {
				return fmt.Errorf("delete provider %s: %w", seed.Name, err)
			}
			log.Info().Str("provider", seed.Name).Msg("provider retired")
			continue
		}

		secret, err := s.codec.Encrypt(seed.ClientSecret)
		if err != nil {
			return fmt.Errorf("encrypt secret for %s: %w", seed.Name, err)
		}

		enabled := true
		if seed.Enabled != nil {
			enabled = *seed.Enabled
		}
		displayName := seed.DisplayName
		if displayName == "" {
			displayName = seed.Name
		}

		_, err = s.repo.Upsert(ctx, model.UpsertProviderConfigParams{
			Name:         seed.Name,
			DisplayName:  displayName,
			ClientID:     seed.ClientID,
			ClientSecret: secret,
			RedirectURI:  seed.RedirectURI,
			Scopes:       seed.Scopes,
			ExtraConfig:  seed.ExtraConfig,
			Enabled:      enabled,
			Status:       model.ProviderStatus(seed.Status),
			Sort:         seed.Sort,
		})
		if err != nil {
			return fmt.Errorf("upsert provider %s: %w", seed.Name, err)
		}
		log.Info().Str("provider", seed.Name).Bool("enabled", enabled).Msg("provider seeded")
	}
	return nil
}
