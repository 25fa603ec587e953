package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	require.NoError(t, Load(""))
	c := Get()
	assert.Equal(t, ":8080", c.HttpListenAddr)
	assert.Equal(t, 15*time.Second, c.SchedulerInterval)
	assert.Equal(t, 8, c.SchedulerWorkers)
	assert.Equal(t, "credits:topup", c.TopUpStream)
	assert.Equal(t, 465, c.SMTPPort)
	assert.True(t, c.SMTPImplicitTLS)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "APP_ENV=prod\nJWT_SECRET=s3cret\nSCHEDULER_INTERVAL=30s\nSMS_PROVIDER_PRIMARY_URL=http://sms.local\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"APP_ENV", "JWT_SECRET", "SCHEDULER_INTERVAL", "SMS_PROVIDER_PRIMARY_URL"} {
			_ = os.Unsetenv(k)
		}
	})

	require.NoError(t, Load(path))
	c := Get()
	assert.Equal(t, "s3cret", c.JWTSecret)
	assert.Equal(t, 30*time.Second, c.SchedulerInterval)
	assert.Equal(t, "http://sms.local", c.SMSProviderPrimaryUrl)
}

func TestLoad_Errors(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.env")))

	t.Run("jwt secret required outside dev", func(t *testing.T) {
		t.Setenv("APP_ENV", "prod")
		t.Setenv("JWT_SECRET", "")
		assert.ErrorContains(t, Load(""), "JWT_SECRET")
	})

	t.Run("workers must be positive", func(t *testing.T) {
		t.Setenv("APP_ENV", "test")
		t.Setenv("SCHEDULER_WORKERS", "0")
		assert.ErrorContains(t, Load(""), "SCHEDULER_WORKERS")
	})
}

func TestEnvPathFromArgs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	assert.Equal(t, path, EnvPathFromArgs([]string{"api", "--env=" + path}))
	assert.Equal(t, "", EnvPathFromArgs([]string{"api", "--env=/does/not/exist"}))
	assert.Equal(t, "", EnvPathFromArgs([]string{"api"}))
}
