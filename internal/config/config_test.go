// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-engine/internal/domain"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, "UTC", cfg.LimitsLocation.String())
	assert.Len(t, cfg.VerificationLimits, 4)
	assert.Equal(t, "USD", cfg.SystemCurrency)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Empty(t, cfg.Notify.Channels)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("LIMITS_TIMEZONE", "Africa/Nairobi")
	t.Setenv("VERIFICATION_LIMITS", `[{"tier":0,"daily_cap":"0","monthly_cap":"0"},{"tier":1,"daily_cap":"50","monthly_cap":null}]`)
	t.Setenv("NOTIFY_CHANNELS", "sms, in_app")
	t.Setenv("SYSTEM_WALLET_ID", "1")
	t.Setenv("SYSTEM_CURRENCY", "kes")

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, "Africa/Nairobi", cfg.LimitsLocation.String())
	require.Len(t, cfg.VerificationLimits, 2)
	assert.Equal(t, "50", cfg.VerificationLimits[1].DailyCap.String())
	assert.Nil(t, cfg.VerificationLimits[1].MonthlyCap)
	assert.Equal(t, []domain.NotificationChannel{domain.ChannelSMS, domain.ChannelInApp}, cfg.Notify.Channels)
	assert.Equal(t, int64(1), cfg.SystemWalletID)
	assert.Equal(t, "KES", cfg.SystemCurrency)
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_PORT", "postgres")
	t.Setenv("LOCK_TIMEOUT", "soon")
	t.Setenv("VERIFICATION_LIMITS", `[{"tier":1,"daily_cap":"100"},{"tier":1,"daily_cap":"200"}]`)
	t.Setenv("NOTIFY_CHANNELS", "PIGEON")

	_, err := loadFromEnv()
	require.Error(t, err)
	for _, key := range []string{"JWT_SECRET", "DB_PORT", "LOCK_TIMEOUT", "VERIFICATION_LIMITS", "PIGEON"} {
		assert.ErrorContains(t, err, key)
	}
}
