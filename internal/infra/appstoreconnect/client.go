package appstoreconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultBaseURL is the production API host
const DefaultBaseURL = "https://api.appstoreconnect.apple.com"

const (
	audience      = "appstoreconnect-v1"
	tokenLifetime = 20 * time.Minute
	// Tokens are replaced this long before they expire
	tokenRenewal = time.Minute
)

// Credentials is an API key pair
type Credentials struct {
	IssuerID   string
	KeyID      string
	PrivateKey string // PEM encoded P-256 key
}

// Tester is a beta tester with the groups they belong to
type Tester struct {
	ID           string
	Email        string
	BetaGroupIDs []string
}

type cachedToken struct {
	token   string
	expires time.Time
}

// Client is the App Store Connect REST client
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time

	mu     sync.Mutex
	tokens map[string]cachedToken // by key ID
}

// NewClient creates a client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		now:     time.Now,
		tokens:  make(map[string]cachedToken),
	}
}

// token returns a signed bearer token for the key, reusing a cached one
func (c *Client) token(creds Credentials) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if t, ok := c.tokens[creds.KeyID]; ok && now.Before(t.expires.Add(-tokenRenewal)) {
		return t.token, nil
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key %s: %w", creds.KeyID, err)
	}

	expires := now.Add(tokenLifetime)
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": creds.IssuerID,
		"iat": now.Unix(),
		"exp": expires.Unix(),
		"aud": audience,
	})
	tok.Header["kid"] = creds.KeyID

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	c.tokens[creds.KeyID] = cachedToken{token: signed, expires: expires}
	return signed, nil
}

func (c *Client) do(ctx context.Context, creds Credentials, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	if !strings.HasPrefix(target, "http") {
		target = c.baseURL + target
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.token(creds)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

type resourceID struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type betaTesterResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Email string `json:"email"`
	} `json:"attributes"`
	Relationships struct {
		BetaGroups struct {
			Data []resourceID `json:"data"`
		} `json:"betaGroups"`
	} `json:"relationships"`
}

type betaTestersResponse struct {
	Data  []betaTesterResource `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// FindBetaTesters finds testers by email, limited to one app when appID is set
func (c *Client) FindBetaTesters(ctx context.Context, creds Credentials, email, appID string) ([]Tester, error) {
	q := url.Values{}
	q.Set("filter[email]", email)
	if appID != "" {
		q.Set("filter[apps]", appID)
	}
	q.Set("include", "betaGroups")
	q.Set("limit", "200")

	var testers []Tester
	next := "/v1/betaTesters?" + q.Encode()
	for next != "" {
		var page betaTestersResponse
		if err := c.do(ctx, creds, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, r := range page.Data {
			t := Tester{ID: r.ID, Email: r.Attributes.Email}
			for _, g := range r.Relationships.BetaGroups.Data {
				t.BetaGroupIDs = append(t.BetaGroupIDs, g.ID)
			}
			testers = append(testers, t)
		}
		next = page.Links.Next
	}
	return testers, nil
}

// CreateBetaTester creates a tester directly in a beta group
func (c *Client) CreateBetaTester(ctx context.Context, creds Credentials, groupID, email, firstName, lastName string) error {
	body := map[string]any{
		"data": map[string]any{
			"type": "betaTesters",
			"attributes": map[string]string{
				"email":     email,
				"firstName": firstName,
				"lastName":  lastName,
			},
			"relationships": map[string]any{
				"betaGroups": map[string]any{
					"data": []resourceID{{Type: "betaGroups", ID: groupID}},
				},
			},
		},
	}
	return c.do(ctx, creds, http.MethodPost, "/v1/betaTesters", body, nil)
}

// RemoveFromBetaGroup removes a tester from one beta group
func (c *Client) RemoveFromBetaGroup(ctx context.Context, creds Credentials, groupID, testerID string) error {
	body := map[string]any{
		"data": []resourceID{{Type: "betaTesters", ID: testerID}},
	}
	return c.do(ctx, creds, http.MethodDelete, "/v1/betaGroups/"+url.PathEscape(groupID)+"/relationships/betaTesters", body, nil)
}

// DeleteBetaTester deletes a tester from every app of the key's provider
func (c *Client) DeleteBetaTester(ctx context.Context, creds Credentials, testerID string) error {
	return c.do(ctx, creds, http.MethodDelete, "/v1/betaTesters/"+url.PathEscape(testerID), nil, nil)
}
