package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/oauth-bridge-go/internal/database"
	"github.com/openclaw/oauth-bridge-go/internal/model"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Connect(url)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func createTestProvider(t *testing.T, db *database.DB) string {
	t.Helper()
	name := "p" + uuid.NewString()[:8]
	_, err := NewProviderConfigRepository(db.DB).Upsert(context.Background(), model.UpsertProviderConfigParams{
		Name:         name,
		DisplayName:  "Test",
		ClientID:     "client",
		ClientSecret: "ciphertext",
		RedirectURI:  "https://app.example.com/oauth/" + name + "/callback",
		Scopes:       []string{"read"},
		Enabled:      true,
	})
	require.NoError(t, err)
	return name
}

func createTestUser(t *testing.T, db *database.DB) *model.User {
	t.Helper()
	user, err := NewUserRepository(db.DB).Create(context.Background(), model.CreateUserParams{
		ID:       uuid.NewString(),
		Username: "tester",
	})
	require.NoError(t, err)
	return user
}
