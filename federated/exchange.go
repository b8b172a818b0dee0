package federated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/academyshow/authkit"
)

var errExchange = errors.New("provider exchange failed")

// exchangeCode swaps an authorization code for the provider's access
// token. The PKCE verifier proves this process started the flow.
func (b *Bridge) exchangeCode(ctx context.Context, provider Provider, code, verifier string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", provider.ClientID)
	form.Set("redirect_uri", b.callbackURL(provider.Name))
	form.Set("code_verifier", verifier)
	if provider.ClientSecret != "" {
		form.Set("client_secret", provider.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// GitHub returns form-encoded unless JSON is requested explicitly.
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errExchange, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", errExchange, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", errExchange, err)
	}
	if body.AccessToken == "" {
		return "", errExchange
	}
	return body.AccessToken, nil
}

// fetchProfile loads the provider profile and maps it to an assertion
// using the provider's configured field paths.
func (b *Bridge) fetchProfile(ctx context.Context, provider Provider, accessToken string) (authkit.FederatedAssertion, error) {
	var assertion authkit.FederatedAssertion

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.ProfileURL, nil)
	if err != nil {
		return assertion, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return assertion, fmt.Errorf("%w: %v", errExchange, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return assertion, fmt.Errorf("%w: profile status %d", errExchange, resp.StatusCode)
	}

	var profile map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return assertion, fmt.Errorf("%w: %v", errExchange, err)
	}

	subject := fieldString(profile, provider.SubjectField)
	if subject == "" {
		return assertion, fmt.Errorf("%w: profile missing subject", errExchange)
	}

	assertion = authkit.FederatedAssertion{
		Provider: provider.Name,
		Subject:  subject,
		Username: fieldString(profile, provider.UsernameField),
		Email:    fieldString(profile, provider.EmailField),
	}
	return assertion, nil
}

// fieldString resolves a dot-separated path in decoded profile JSON.
// Numeric IDs (GitHub, Kakao) are rendered without an exponent.
func fieldString(profile map[string]any, fieldPath string) string {
	if fieldPath == "" {
		return ""
	}
	var value any = profile
	for _, part := range strings.Split(fieldPath, ".") {
		obj, ok := value.(map[string]any)
		if !ok {
			return ""
		}
		value, ok = obj[part]
		if !ok {
			return ""
		}
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
