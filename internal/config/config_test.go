package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		cfg, err := Load()

		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
		assert.Equal(t, "tempiemail.com", cfg.SMTP.Domain)
		assert.Equal(t, 10*time.Second, cfg.SMTP.ReadTimeout)
		assert.Equal(t, 50, cfg.SMTP.MaxRecipients)
		assert.Equal(t, 48*time.Hour, cfg.Mailbox.AddressTTL)
		assert.Equal(t, 24*time.Hour, cfg.Mailbox.MessageTTL)
		assert.Equal(t, 100, cfg.Mailbox.Retention)
		assert.Equal(t, time.Hour, cfg.Mailbox.SweepInterval)
		assert.Equal(t, 168, cfg.Mailbox.MaxExtendHours)
		assert.Contains(t, cfg.Mailbox.Domains, "disposable.email")
		assert.Equal(t, 10<<20, cfg.Abuse.MaxMessageBytes)
		assert.Equal(t, 50, cfg.Abuse.MaxPerHour)
		assert.Equal(t, 10, cfg.Abuse.MaxLinks)
		assert.Equal(t, []string{"spam.com", "malware.com", "virus.com", "phishing.com"}, cfg.Abuse.BlockedDomains)
		assert.Equal(t, 10, cfg.Provision.PerMinute)
		assert.Equal(t, 10, cfg.Provision.MaxBatch)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		t.Setenv("TEMPIE_SERVER_PORT", "9090")
		t.Setenv("TEMPIE_SMTP_BIND_ADDR", ":587")
		t.Setenv("TEMPIE_MAILBOX_DOMAINS", "Custom.Mail, test.dev")
		t.Setenv("TEMPIE_MAILBOX_ADDRESS_TTL", "2h")
		t.Setenv("TEMPIE_MAILBOX_RETENTION", "5")
		t.Setenv("TEMPIE_ABUSE_MAX_PER_HOUR", "3")
		t.Setenv("TEMPIE_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
		t.Setenv("TEMPIE_LOG_LEVEL", "debug")
		t.Setenv("TEMPIE_LOG_DEVELOPMENT", "true")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, ":587", cfg.SMTP.BindAddr)
		assert.Equal(t, []string{"custom.mail", "test.dev"}, cfg.Mailbox.Domains)
		assert.Equal(t, 2*time.Hour, cfg.Mailbox.AddressTTL)
		assert.Equal(t, 5, cfg.Mailbox.Retention)
		assert.Equal(t, 3, cfg.Abuse.MaxPerHour)
		assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Log.Development)
	})

	t.Run("非正数回退默认值", func(t *testing.T) {
		t.Setenv("TEMPIE_MAILBOX_RETENTION", "0")
		t.Setenv("TEMPIE_PROVISION_MAX_BATCH", "-3")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Mailbox.Retention)
		assert.Equal(t, 10, cfg.Provision.MaxBatch)
	})

	t.Run("无效的时长配置失败", func(t *testing.T) {
		t.Setenv("TEMPIE_MAILBOX_MESSAGE_TTL", "forever")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "mailbox.message_ttl")
	})

	t.Run("域名列表为空失败", func(t *testing.T) {
		t.Setenv("TEMPIE_MAILBOX_DOMAINS", " , ")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a, ,b "))
	assert.Empty(t, parseList(""))
	assert.Equal(t, []string{"x.io", "y.io"}, parseDomains("X.io,Y.IO"))
}
