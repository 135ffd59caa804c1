//go:build e2e

package e2e

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseURL = getEnv("OPENTRUSTY_API_URL", "http://127.0.0.1:8080")

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// TestClient is a cookie-carrying HTTP client standing in for a browser
// across the login and authorize steps of the grant.
type TestClient struct {
	httpClient *http.Client
}

func NewTestClient() *TestClient {
	jar, _ := cookiejar.New(nil)
	return &TestClient{httpClient: &http.Client{Jar: jar, Timeout: 10 * time.Second}}
}

func (c *TestClient) doJSON(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(b)
	}
	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func pkcePair() (verifier, challenge string) {
	verifier = "e2e-fixed-verifier-0123456789abcdefghijklmno"
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge
}

// TestE2E_AuthorizationCodeGrant walks register -> login -> register client
// -> authorize (with PKCE) -> token exchange -> userinfo -> refresh ->
// revoke, the full lifecycle spec.md §4 describes.
func TestE2E_AuthorizationCodeGrant(t *testing.T) {
	client := NewTestClient()

	email := fmt.Sprintf("e2e-%d@opentrusty.local", time.Now().UnixNano())
	password := "correct horse battery staple"

	resp, err := client.doJSON(http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = client.doJSON(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.doJSON(http.MethodPost, "/clients", map[string]any{
		"name":           "e2e testing app",
		"redirect_uris":  []string{"http://localhost:3000/callback"},
		"allowed_scopes": []string{"openid", "profile", "email"},
		"confidential":   true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var clientCreds struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&clientCreds))
	require.NotEmpty(t, clientCreds.ClientID)
	require.NotEmpty(t, clientCreds.ClientSecret)

	verifier, challenge := pkcePair()
	state := "xyz123"

	authorizeURL := fmt.Sprintf(
		"%s/authorize?client_id=%s&response_type=code&scope=%s&redirect_uri=%s&state=%s&code_challenge=%s&code_challenge_method=S256",
		baseURL,
		clientCreds.ClientID,
		url.QueryEscape("openid profile email"),
		url.QueryEscape("http://localhost:3000/callback"),
		state,
		challenge,
	)

	client.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err = client.httpClient.Get(authorizeURL)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := resp.Location()
	require.NoError(t, err)
	assert.Equal(t, state, loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	tokenForm := url.Values{}
	tokenForm.Set("grant_type", "authorization_code")
	tokenForm.Set("code", code)
	tokenForm.Set("redirect_uri", "http://localhost:3000/callback")
	tokenForm.Set("client_id", clientCreds.ClientID)
	tokenForm.Set("client_secret", clientCreds.ClientSecret)
	tokenForm.Set("code_verifier", verifier)

	req, _ := http.NewRequest(http.MethodPost, baseURL+"/token", bytes.NewBufferString(tokenForm.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = client.httpClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokenResp))
	assert.NotEmpty(t, tokenResp.AccessToken)
	assert.NotEmpty(t, tokenResp.RefreshToken)
	assert.NotEmpty(t, tokenResp.IDToken)

	req, _ = http.NewRequest(http.MethodGet, baseURL+"/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)
	resp, err = client.httpClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&claims))
	assert.Equal(t, email, claims.Email)

	refreshForm := url.Values{}
	refreshForm.Set("grant_type", "refresh_token")
	refreshForm.Set("refresh_token", tokenResp.RefreshToken)
	refreshForm.Set("client_id", clientCreds.ClientID)
	refreshForm.Set("client_secret", clientCreds.ClientSecret)

	req, _ = http.NewRequest(http.MethodPost, baseURL+"/token", bytes.NewBufferString(refreshForm.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = client.httpClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, tokenResp.AccessToken, refreshed.AccessToken)

	req, _ = http.NewRequest(http.MethodPost, baseURL+"/logout", nil)
	req.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	resp, err = client.httpClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, baseURL+"/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	resp, err = client.httpClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestE2E_Discovery checks the metadata a relying party bootstraps from.
func TestE2E_Discovery(t *testing.T) {
	resp, err := http.Get(baseURL + "/.well-known/openid-configuration")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Issuer        string `json:"issuer"`
		JWKSURI       string `json:"jwks_uri"`
		TokenEndpoint string `json:"token_endpoint"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.NotEmpty(t, doc.Issuer)
	assert.NotEmpty(t, doc.TokenEndpoint)

	resp, err = http.Get(doc.JWKSURI)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
