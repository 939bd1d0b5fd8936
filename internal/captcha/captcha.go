// Package captcha calls the external CAPTCHA verification endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/openexch/exauth/internal/autherr"
)

type Verifier struct {
	Endpoint   string
	Secret     string
	Production bool
	Client     *http.Client
}

func New(endpoint, secret string, production bool) *Verifier {
	return &Verifier{
		Endpoint:   endpoint,
		Secret:     secret,
		Production: production,
		Client:     http.DefaultClient,
	}
}

// Verify checks the client token against the CAPTCHA service. Two
// short-circuits apply: no secret configured means the check always passes,
// and non-production deployments pass when no token was supplied.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if v.Secret == "" {
		return nil
	}
	if !v.Production && token == "" {
		return nil
	}

	form := url.Values{}
	form.Set("secret", v.Secret)
	form.Set("response", token)
	form.Set("remoteip", remoteIP)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.Client.Do(req)
	if err != nil {
		return fmt.Errorf("captcha request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode captcha response: %w", err)
	}
	if !result.Success {
		return autherr.E(autherr.KindInvalidCaptcha, "captcha verification failed")
	}
	return nil
}
