package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef" // 32 chars, minimum length

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KANBU_JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "kanbu_dev", cfg.Database.DBName)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 12*time.Hour, cfg.JWT.AccessTTL)
	assert.Equal(t, 64, cfg.Realtime.SendBuffer)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KANBU_JWT_SECRET", testSecret)
	t.Setenv("KANBU_DB_PORT", "5433")
	t.Setenv("KANBU_SERVER_ADDR", ":9090")
	t.Setenv("KANBU_SEND_BUFFER", "128")
	t.Setenv("KANBU_JWT_ACCESS_TTL", "30m")
	t.Setenv("KANBU_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 128, cfg.Realtime.SendBuffer)
	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			env:     map[string]string{},
			wantErr: "KANBU_JWT_SECRET is required",
		},
		{
			name:    "short jwt secret",
			env:     map[string]string{"KANBU_JWT_SECRET": "too-short"},
			wantErr: "at least 32 characters",
		},
		{
			name: "db port out of range",
			env: map[string]string{
				"KANBU_JWT_SECRET": testSecret,
				"KANBU_DB_PORT":    "70000",
			},
			wantErr: "KANBU_DB_PORT",
		},
		{
			name: "non-numeric send buffer",
			env: map[string]string{
				"KANBU_JWT_SECRET":  testSecret,
				"KANBU_SEND_BUFFER": "lots",
			},
			wantErr: "KANBU_SEND_BUFFER",
		},
		{
			name: "zero send buffer",
			env: map[string]string{
				"KANBU_JWT_SECRET":  testSecret,
				"KANBU_SEND_BUFFER": "0",
			},
			wantErr: "KANBU_SEND_BUFFER",
		},
		{
			name: "negative read timeout",
			env: map[string]string{
				"KANBU_JWT_SECRET":          testSecret,
				"KANBU_SERVER_READ_TIMEOUT": "-1s",
			},
			wantErr: "KANBU_SERVER_READ_TIMEOUT",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	t.Parallel()

	c := &DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "kanbu",
		Password: "hunter2",
		DBName:   "kanbu",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5432 user=kanbu password=hunter2 dbname=kanbu sslmode=require",
		c.DSN(),
	)
}
