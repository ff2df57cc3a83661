package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jakechorley/volunteer-rota/internal/config"
)

const (
	AuthPort       = 3000
	authTimeout    = 5 * time.Minute
	callbackPath   = "/oauth/callback"
	tokenDirName   = ".volunteer-rota/tokens"
	tokenFilePerms = 0600
	tokenDirPerms  = 0700
	tokenInfoURL   = "https://oauth2.googleapis.com/tokeninfo"

	// ScopeGmailSend is the only scope the application needs
	ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"
)

// TokenStore persists one OAuth token per environment under the user's home directory
type TokenStore struct {
	Env string
	Dir string

	mu     sync.Mutex
	cached *oauth2.Token
}

// NewTokenStore returns a store rooted at ~/.volunteer-rota/tokens
func NewTokenStore(env string) (*TokenStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &TokenStore{Env: env, Dir: filepath.Join(homeDir, tokenDirName)}, nil
}

func (s *TokenStore) path() string {
	name := "token.json"
	if s.Env != "" {
		name = "token-" + s.Env + ".json"
	}
	return filepath.Join(s.Dir, name)
}

// Load returns the stored token, or nil if none has been saved
func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &token, nil
}

// Save writes the token with owner-only permissions
func (s *TokenStore) Save(token *oauth2.Token) error {
	if err := os.MkdirAll(s.Dir, tokenDirPerms); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(s.path(), data, tokenFilePerms); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Delete removes the stored token and clears the in-memory copy
func (s *TokenStore) Delete() error {
	s.cached = nil
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// GetOAuthConfig builds the OAuth2 config for sending mail through Gmail
func GetOAuthConfig(oauthCfg *config.OAuthClientConfig) (*oauth2.Config, error) {
	data, err := oauthCfg.Bytes()
	if err != nil {
		return nil, err
	}

	googleConfig, err := google.ConfigFromJSON(data, ScopeGmailSend)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}

	googleConfig.RedirectURL = fmt.Sprintf("http://localhost:%d%s", AuthPort, callbackPath)
	return googleConfig, nil
}

// Token returns a usable token, in order of preference: the in-memory copy,
// the stored token, a refresh of the stored token, or a new browser flow.
// Only one flow runs at a time per store.
func (s *TokenStore) Token(ctx context.Context, oauthConfig *oauth2.Config, logger *zap.Logger) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.cached.Valid() {
		return s.cached, nil
	}

	stored, err := s.Load()
	if err != nil {
		logger.Warn("Failed to load stored token", zap.Error(err))
	}

	if stored != nil {
		token := stored
		if !token.Valid() && token.RefreshToken != "" {
			refreshed, err := oauthConfig.TokenSource(ctx, token).Token()
			if err != nil {
				logger.Warn("Failed to refresh token", zap.Error(err))
			} else {
				token = refreshed
			}
		}

		if token.Valid() {
			if err := validateTokenScopes(ctx, token); err != nil {
				logger.Warn("Stored token is missing scopes, starting new OAuth flow", zap.Error(err))
				s.Delete()
			} else {
				if token != stored {
					if err := s.Save(token); err != nil {
						logger.Warn("Failed to save refreshed token", zap.Error(err))
					}
				}
				s.cached = token
				return token, nil
			}
		}
	}

	authURL := oauthConfig.AuthCodeURL("state", oauth2.AccessTypeOffline)
	fmt.Printf("\nVisit this URL to authorize sending email:\n%s\n\n", authURL)

	code, err := listenForAuthCallback(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if err := validateTokenScopes(ctx, token); err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if err := s.Save(token); err != nil {
		logger.Warn("Failed to save token", zap.Error(err))
	}

	s.cached = token
	return token, nil
}

// validateTokenScopes asks Google's tokeninfo endpoint which scopes the token carries
func validateTokenScopes(ctx context.Context, token *oauth2.Token) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenInfoURL+"?access_token="+token.AccessToken, nil)
	if err != nil {
		return fmt.Errorf("failed to create tokeninfo request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call tokeninfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tokeninfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenInfo struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	if !slices.Contains(strings.Fields(tokenInfo.Scope), ScopeGmailSend) {
		return fmt.Errorf("token is missing scope %s", ScopeGmailSend)
	}
	return nil
}

// listenForAuthCallback serves the redirect URL until a code arrives or the flow times out
func listenForAuthCallback(ctx context.Context) (string, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			http.Error(w, "Authorization failed", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Authorization successful</h1><p>You can close this window.</p></body></html>`)
		codeChan <- code
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", AuthPort), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	var code string
	var authErr error
	select {
	case code = <-codeChan:
	case authErr = <-errChan:
	case <-timeoutCtx.Done():
		authErr = fmt.Errorf("authorization timeout after %v", authTimeout)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	return code, authErr
}
