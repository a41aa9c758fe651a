package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ProviderConfig is a stored OAuth provider. ClientSecret holds ciphertext.
type ProviderConfig struct {
	ID           string         `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	DisplayName  string         `db:"display_name" json:"displayName"`
	ClientID     string         `db:"client_id" json:"clientId"`
	ClientSecret string         `db:"client_secret" json:"-"`
	RedirectURI  string         `db:"redirect_uri" json:"redirectUri"`
	Scopes       pq.StringArray `db:"scopes" json:"scopes"`
	ExtraConfig  StringMap      `db:"extra_config" json:"-"`
	Enabled      bool           `db:"enabled" json:"enabled"`
	Status       ProviderStatus `db:"status" json:"status"`
	Sort         int            `db:"sort" json:"sort"`
	DeletedAt    *time.Time     `db:"deleted_at" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

// Usable reports whether new flows may start against this provider.
func (p *ProviderConfig) Usable() bool {
	return p.Enabled && p.Status == ProviderStatusActive && p.DeletedAt == nil
}

type UpsertProviderConfigParams struct {
	Name         string
	DisplayName  string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	ExtraConfig  map[string]string
	Enabled      bool
	Status       ProviderStatus
	Sort         int
}

// StringMap is a string map persisted as a JSON object.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = StringMap{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan StringMap: unsupported type %T", src)
	}
	out := StringMap{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("scan StringMap: %w", err)
	}
	*m = out
	return nil
}

// Get returns the value for key or "" when the map is nil.
func (m StringMap) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}
