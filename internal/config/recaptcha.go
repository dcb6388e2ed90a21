package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const recaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

type RecaptchaResponse struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
	Action  string  `json:"action"`
}

// Recaptcha verifies client tokens. A verifier with an empty secret accepts everything.
type Recaptcha struct {
	secret   string
	minScore float64
	endpoint string
	client   *http.Client
}

func NewRecaptcha(secret string, minScore float64) *Recaptcha {
	return &Recaptcha{
		secret:   secret,
		minScore: minScore,
		endpoint: recaptchaVerifyURL,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *Recaptcha) Enabled() bool {
	return r != nil && r.secret != ""
}

// Verify reports whether token passes with at least the configured score.
func (r *Recaptcha) Verify(ctx context.Context, token string) (bool, error) {
	if !r.Enabled() {
		return true, nil
	}
	if token == "" {
		return false, nil
	}

	data := url.Values{}
	data.Set("secret", r.secret)
	data.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("recaptcha request: %w", err)
	}
	defer resp.Body.Close()

	var result RecaptchaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("recaptcha decode: %w", err)
	}

	// v2 responses carry no score.
	if result.Success && result.Score == 0 {
		return true, nil
	}
	return result.Success && result.Score >= r.minScore, nil
}
