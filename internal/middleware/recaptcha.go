package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/logger"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
)

// RecaptchaScoreKey is the gin context key holding the verified score.
const RecaptchaScoreKey = "recaptchaScore"

const DefaultRecaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// CaptchaVerifier checks a client captcha token server side.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (CaptchaResult, error)
}

type CaptchaResult struct {
	Success bool
	Score   float64
}

// RecaptchaClient verifies tokens against the reCAPTCHA siteverify endpoint.
type RecaptchaClient struct {
	secret    string
	verifyURL string
	http      *http.Client
}

func NewRecaptchaClient(secret, verifyURL string, timeout time.Duration) *RecaptchaClient {
	if verifyURL == "" {
		verifyURL = DefaultRecaptchaVerifyURL
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RecaptchaClient{secret: secret, verifyURL: verifyURL, http: &http.Client{Timeout: timeout}}
}

func (rc *RecaptchaClient) Verify(ctx context.Context, token, remoteIP string) (CaptchaResult, error) {
	form := url.Values{"secret": {rc.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return CaptchaResult{}, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := rc.http.Do(req)
	if err != nil {
		return CaptchaResult{}, fmt.Errorf("siteverify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return CaptchaResult{}, fmt.Errorf("siteverify: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Success bool    `json:"success"`
		Score   float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CaptchaResult{}, fmt.Errorf("decode siteverify response: %w", err)
	}
	return CaptchaResult{Success: out.Success, Score: out.Score}, nil
}

type RecaptchaOptions struct {
	// Required rejects votes without a valid token. When false every request
	// passes through unverified, matching local development setups.
	Required bool
	MinScore float64
}

// Recaptcha verifies the body's recaptchaToken and stores the score under
// RecaptchaScoreKey. The body is cached so the handler can bind it again.
func Recaptcha(v CaptchaVerifier, opts RecaptchaOptions, l *logger.Logger) gin.HandlerFunc {
	l = logging.Resolve(l)
	return func(c *gin.Context) {
		if !opts.Required {
			c.Next()
			return
		}

		var body struct {
			RecaptchaToken string `json:"recaptchaToken"`
		}
		_ = c.ShouldBindBodyWith(&body, binding.JSON)
		token := strings.TrimSpace(body.RecaptchaToken)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": true, "message": "Security verification required"})
			return
		}
		if v == nil {
			l.Error("event=recaptcha_not_configured")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Server configuration error"})
			return
		}

		res, err := v.Verify(c.Request.Context(), token, c.ClientIP())
		if err != nil {
			l.Warningf("event=recaptcha_verify_failed ip=%s error=%v", c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": true, "message": "Security verification error"})
			return
		}
		if !res.Success || res.Score < opts.MinScore {
			l.Warningf("event=recaptcha_rejected ip=%s success=%t score=%.2f", c.ClientIP(), res.Success, res.Score)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": true, "message": "Security verification failed"})
			return
		}

		c.Set(RecaptchaScoreKey, res.Score)
		c.Next()
	}
}
