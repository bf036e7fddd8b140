package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.ReadTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24, cfg.JWT.ExpireHours)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "mun-community-logos", cfg.AWS.LogoBucket)
	assert.Empty(t, cfg.Owner.Email)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_EXPIRE_HOURS", "72")
	t.Setenv("OWNER_EMAIL", "boss@example.com")
	t.Setenv("AWS_S3_LOGO_BUCKET", "custom-logos")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 72, cfg.JWT.ExpireHours)
	assert.Equal(t, "boss@example.com", cfg.Owner.Email)
	assert.Equal(t, "custom-logos", cfg.AWS.LogoBucket)
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db.internal", Port: "5433", User: "app", Password: "pw",
		DBName: "mun", SSLMode: "require",
	}
	assert.Equal(t, "postgres://app:pw@db.internal:5433/mun?sslmode=require", db.DSN())

	db.URL = "postgres://localhost:5432/override?sslmode=disable"
	assert.Equal(t, "postgres://localhost:5432/override?sslmode=disable", db.DSN())
}
