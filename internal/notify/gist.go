package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultGitHubAPI is the GitHub REST API base URL.
const DefaultGitHubAPI = "https://api.github.com"

// ErrNoGistToken is returned when no GitHub token is configured.
var ErrNoGistToken = errors.New("gist publisher has no token")

// Publisher uploads a rendered report and returns its public URL.
type Publisher interface {
	PublishReport(ctx context.Context, filename, description, content string) (string, error)
}

// Gist publishes reports as public GitHub gists.
type Gist struct {
	token   string
	baseURL string
	client  *http.Client
}

var _ Publisher = (*Gist)(nil)

// NewGist registers a GitHub token with the gist scope.
func NewGist(token string) *Gist {
	return &Gist{
		token:   token,
		baseURL: DefaultGitHubAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL points the publisher at another API host.
func (g *Gist) WithBaseURL(base string) *Gist {
	g.baseURL = strings.TrimRight(base, "/")
	return g
}

type gistFile struct {
	Content string `json:"content"`
}

type gistRequest struct {
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]gistFile `json:"files"`
}

// PublishReport creates a public gist holding content under filename and
// returns its html_url.
func (g *Gist) PublishReport(ctx context.Context, filename, description, content string) (string, error) {
	if g.token == "" || g.client == nil {
		return "", ErrNoGistToken
	}

	body, err := json.Marshal(gistRequest{
		Description: description,
		Public:      true,
		Files:       map[string]gistFile{filename: {Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal gist: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/gists", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("gist error: %s", resp.Status)
	}

	var created struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode gist response: %w", err)
	}
	if created.HTMLURL == "" {
		return "", errors.New("gist response has no html_url")
	}
	return created.HTMLURL, nil
}
