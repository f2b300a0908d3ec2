package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("POSTGRES_DSN", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.VoteRateLimit != 20 || cfg.VoteRateWindow != time.Minute {
			t.Errorf("unexpected voter limit %d/%s", cfg.VoteRateLimit, cfg.VoteRateWindow)
		}
		if cfg.WorkerBatchSize != 10 || cfg.WorkerWaitTime != 20*time.Second || cfg.WorkerVisibilityTimeout != 30*time.Second {
			t.Errorf("unexpected worker defaults %+v", cfg)
		}
		if cfg.RecaptchaRequired || cfg.RecaptchaMinScore != 0.5 {
			t.Errorf("unexpected captcha defaults %v/%v", cfg.RecaptchaRequired, cfg.RecaptchaMinScore)
		}
		if !strings.Contains(cfg.PostgresDSN, "host=localhost") {
			t.Errorf("expected assembled dsn, got %q", cfg.PostgresDSN)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("VOTE_RATE_LIMIT", "5")
		t.Setenv("IP_RATE_WINDOW_SECONDS", "30")
		t.Setenv("PUBLISH_TIMEOUT", "750ms")
		t.Setenv("POSTGRES_DSN", "postgres://u:p@db/votes")
		t.Setenv("LOG_VERBOSE", "off")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.VoteRateLimit != 5 || cfg.IPRateWindow != 30*time.Second || cfg.PublishTimeout != 750*time.Millisecond {
			t.Errorf("overrides not applied: %+v", cfg)
		}
		if cfg.PostgresDSN != "postgres://u:p@db/votes" || cfg.Verbose {
			t.Errorf("unexpected dsn/verbose: %q %v", cfg.PostgresDSN, cfg.Verbose)
		}
	})

	t.Run("malformed values are reported", func(t *testing.T) {
		t.Setenv("VOTE_RATE_LIMIT", "lots")
		t.Setenv("STORE_TIMEOUT", "soon")
		_, err := Load()
		if err == nil {
			t.Fatal("expected an error")
		}
		if !strings.Contains(err.Error(), "VOTE_RATE_LIMIT") || !strings.Contains(err.Error(), "STORE_TIMEOUT") {
			t.Errorf("expected both keys in %q", err)
		}
	})

	t.Run("wait time outside the long-poll range", func(t *testing.T) {
		for _, v := range []string{"21", "-1"} {
			t.Setenv("WORKER_WAIT_TIME_SECONDS", v)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), "WORKER_WAIT_TIME_SECONDS") {
				t.Errorf("WORKER_WAIT_TIME_SECONDS=%s: expected a range error, got %v", v, err)
			}
		}
		t.Setenv("WORKER_WAIT_TIME_SECONDS", "0")
		if _, err := Load(); err != nil {
			t.Errorf("expected 0 to be accepted, got %v", err)
		}
	})

	t.Run("captcha", func(t *testing.T) {
		t.Setenv("RECAPTCHA_REQUIRED", "true")
		t.Setenv("RECAPTCHA_SECRET_KEY", "")
		if _, err := Load(); err == nil {
			t.Fatal("expected an error when required without a secret")
		}
		t.Setenv("RECAPTCHA_SECRET_KEY", "s3cret")
		t.Setenv("RECAPTCHA_MIN_SCORE", "0.7")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if !cfg.RecaptchaRequired || cfg.RecaptchaMinScore != 0.7 {
			t.Errorf("unexpected captcha config %+v", cfg)
		}
	})

	t.Run("batch size above the queue maximum", func(t *testing.T) {
		t.Setenv("WORKER_BATCH_SIZE", "11")
		if _, err := Load(); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"yes", true},
		{"0", false},
		{"FALSE", false},
		{"maybe", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv("FLAG", tt.raw)
			if got := envBool("FLAG", true); got != tt.want {
				t.Errorf("envBool(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
