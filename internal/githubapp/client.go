// Package githubapp is the authenticated GitHub REST client: app JWT
// minting, cached installation tokens, and the bounded-retry HTTP
// discipline every outbound call goes through.
package githubapp

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultBaseURL = "https://api.github.com"

	// appJWTLifetime is deliberately under GitHub's 10-minute ceiling.
	appJWTLifetime = 9 * time.Minute

	// tokenSkew refreshes installation tokens this long before expiry.
	tokenSkew = 60 * time.Second

	acceptJSON = "application/vnd.github+json"
	acceptDiff = "application/vnd.github.v3.diff"
)

type instToken struct {
	token     string
	expiresAt time.Time
}

// Client calls the GitHub REST API as a GitHub App. Safe for concurrent
// use; the token cache is shared across simultaneously handled events.
type Client struct {
	appID      int64
	privateKey *rsa.PrivateKey
	baseURL    string
	http       *http.Client
	retry      RetryPolicy
	tokens     *lru.Cache[int64, instToken]
}

// New builds a Client from the app id and its PEM-encoded RSA private key.
func New(appID int64, privateKeyPEM []byte) (*Client, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}
	tokens, err := lru.New[int64, instToken](256)
	if err != nil {
		return nil, err
	}
	return &Client{
		appID:      appID,
		privateKey: key,
		baseURL:    defaultBaseURL,
		http:       &http.Client{Timeout: 10 * time.Second},
		retry:      DefaultRetryPolicy(),
		tokens:     tokens,
	}, nil
}

// WithBaseURL points the client at a different API root (tests, GHES).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// WithRetryPolicy replaces the default retry policy.
func (c *Client) WithRetryPolicy(p RetryPolicy) *Client {
	c.retry = p
	return c
}

// appJWT mints the short-lived signed JWT that identifies the app itself.
func (c *Client) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(c.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
}

// InstallationToken returns a cached installation access token, minting a
// fresh one when the cached token is within tokenSkew of expiry.
func (c *Client) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	if t, ok := c.tokens.Get(installationID); ok && time.Until(t.expiresAt) > tokenSkew {
		return t.token, nil
	}

	appJWT, err := c.appJWT()
	if err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", acceptJSON)

	resp, err := c.retry.Do(c.http, req)
	if err != nil {
		return "", fmt.Errorf("mint installation token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, URL: u}
	}

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	c.tokens.Add(installationID, instToken{token: out.Token, expiresAt: out.ExpiresAt})
	return out.Token, nil
}

// do runs one authenticated request through the retry policy and checks
// for a 2xx. The caller owns the response body.
func (c *Client) do(ctx context.Context, installationID int64, method, rawURL, accept string, body []byte) (*http.Response, error) {
	token, err := c.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.retry.Do(c.http, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, installationID int64, rawURL string, out any) error {
	resp, err := c.do(ctx, installationID, http.MethodGet, rawURL, acceptJSON, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchDiff retrieves a pull request's unified diff text.
func (c *Client) FetchDiff(ctx context.Context, installationID int64, diffURL string) (string, error) {
	resp, err := c.do(ctx, installationID, http.MethodGet, diffURL, acceptDiff, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetFileContent fetches one file at a ref. The contents API base64-encodes
// file bodies; an absent encoding field means the content is already plain.
func (c *Client) GetFileContent(ctx context.Context, installationID int64, repoFullName, path, ref string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s",
		c.baseURL, repoFullName, escapePath(path), url.QueryEscape(ref))
	var out struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.getJSON(ctx, installationID, u, &out); err != nil {
		return "", err
	}
	if out.Encoding != "base64" {
		return out.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return string(decoded), nil
}

// TreeEntry is one path in a repository tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ListTree lists every blob in the repository at ref.
func (c *Client) ListTree(ctx context.Context, installationID int64, repoFullName, ref string) ([]TreeEntry, error) {
	u := fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", c.baseURL, repoFullName, url.PathEscape(ref))
	var out struct {
		Tree      []TreeEntry `json:"tree"`
		Truncated bool        `json:"truncated"`
	}
	if err := c.getJSON(ctx, installationID, u, &out); err != nil {
		return nil, err
	}
	blobs := make([]TreeEntry, 0, len(out.Tree))
	for _, e := range out.Tree {
		if e.Type == "blob" {
			blobs = append(blobs, e)
		}
	}
	return blobs, nil
}

// IssueComment is the subset of the comments API the bot reads.
type IssueComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// ListComments returns the comments on an issue or pull request.
func (c *Client) ListComments(ctx context.Context, installationID int64, repoFullName string, number int) ([]IssueComment, error) {
	u := fmt.Sprintf("%s/repos/%s/issues/%d/comments?per_page=100", c.baseURL, repoFullName, number)
	var out []IssueComment
	if err := c.getJSON(ctx, installationID, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostComment creates a new comment on an issue or pull request.
func (c *Client) PostComment(ctx context.Context, installationID int64, repoFullName string, number int, body string) error {
	u := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.baseURL, repoFullName, number)
	payload, _ := json.Marshal(map[string]string{"body": body})
	resp, err := c.do(ctx, installationID, http.MethodPost, u, acceptJSON, payload)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// PatchComment rewrites an existing comment's body.
func (c *Client) PatchComment(ctx context.Context, installationID int64, repoFullName string, commentID int64, body string) error {
	u := fmt.Sprintf("%s/repos/%s/issues/comments/%d", c.baseURL, repoFullName, commentID)
	payload, _ := json.Marshal(map[string]string{"body": body})
	resp, err := c.do(ctx, installationID, http.MethodPatch, u, acceptJSON, payload)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// UpsertComment keeps one bot comment per issue/PR: with a marker it
// patches the first existing comment containing it, otherwise it posts.
func (c *Client) UpsertComment(ctx context.Context, installationID int64, repoFullName string, number int, body, marker string) error {
	if marker != "" {
		comments, err := c.ListComments(ctx, installationID, repoFullName, number)
		if err != nil {
			return err
		}
		for _, cm := range comments {
			if strings.Contains(cm.Body, marker) {
				return c.PatchComment(ctx, installationID, repoFullName, cm.ID, body)
			}
		}
	}
	return c.PostComment(ctx, installationID, repoFullName, number, body)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
