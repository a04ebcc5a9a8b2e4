package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 1, c.MinNumber)
	assert.Equal(t, 999, c.MaxNumber)
	assert.Equal(t, StoreSQLite, c.StoreDriver)
	assert.Equal(t, 5*time.Second, c.TxTimeout)
	assert.Equal(t, 5, c.MaxTxAttempts)
	assert.Equal(t, AnnouncerLog, c.Announcer)
	assert.Equal(t, 2*time.Second, c.AnnounceTimeout)
	assert.False(t, c.OperatorEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LUCKYDRAW_MIN_NUMBER", "100")
	t.Setenv("LUCKYDRAW_MAX_NUMBER", "300")
	t.Setenv("LUCKYDRAW_STORE", "memory")
	t.Setenv("LUCKYDRAW_TX_TIMEOUT", "250ms")
	t.Setenv("LUCKYDRAW_ADMIN_EMAIL", "ops@example.com")
	t.Setenv("LUCKYDRAW_ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("LUCKYDRAW_JWT_SECRET", "secret")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, c.MinNumber)
	assert.Equal(t, 300, c.MaxNumber)
	assert.Equal(t, StoreMemory, c.StoreDriver)
	assert.Equal(t, 250*time.Millisecond, c.TxTimeout)
	assert.True(t, c.OperatorEnabled())
}

func TestValidate(t *testing.T) {
	base := App{
		MinNumber:       1,
		MaxNumber:       10,
		StoreDriver:     StoreMemory,
		Announcer:       AnnouncerNone,
		TxTimeout:       time.Second,
		MaxTxAttempts:   1,
		AnnounceTimeout: time.Second,
	}
	require.NoError(t, base.Validate())

	tests := map[string]func(c *App){
		"zero min":             func(c *App) { c.MinNumber = 0 },
		"max below min":        func(c *App) { c.MaxNumber = 0 },
		"unknown store":        func(c *App) { c.StoreDriver = "mongo" },
		"postgres without dsn": func(c *App) { c.StoreDriver = StorePostgres },
		"redis without url":    func(c *App) { c.Announcer = AnnouncerRedis },
		"amqp without url":     func(c *App) { c.Announcer = AnnouncerAMQP },
		"unknown announcer":    func(c *App) { c.Announcer = "carrier-pigeon" },
		"no attempts":          func(c *App) { c.MaxTxAttempts = 0 },
		"no timeout":           func(c *App) { c.TxTimeout = 0 },
		"no announce timeout":  func(c *App) { c.AnnounceTimeout = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
