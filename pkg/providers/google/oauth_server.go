package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// OAuthCallbackServer handles OAuth redirects
type OAuthCallbackServer struct {
	server   *http.Server
	listener net.Listener
	port     int
	state    string
	codeChan chan string
	errChan  chan error
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewOAuthCallbackServer creates a new callback server on a free loopback
// port. Callbacks must carry state.
func NewOAuthCallbackServer(state string, logger zerolog.Logger) (*OAuthCallbackServer, error) {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port

	s := &OAuthCallbackServer{
		listener: listener,
		port:     port,
		state:    state,
		codeChan: make(chan string, 1),
		errChan:  make(chan error, 1),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler: mux,
	}

	return s, nil
}

// Start starts the callback server
func (s *OAuthCallbackServer) Start() {
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("OAuth callback server error")
		}
	}()
}

// Stop stops the callback server
func (s *OAuthCallbackServer) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("OAuth callback server shutdown")
		}
	}
}

// GetRedirectURL returns the callback URL
func (s *OAuthCallbackServer) GetRedirectURL() string {
	return fmt.Sprintf("http://localhost:%d/callback", s.port)
}

// WaitForCode waits for the authorization code
func (s *OAuthCallbackServer) WaitForCode(ctx context.Context) (string, error) {
	select {
	case code := <-s.codeChan:
		return code, nil
	case err := <-s.errChan:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *OAuthCallbackServer) fail(err error) {
	select {
	case s.errChan <- err:
	default:
	}
}

func (s *OAuthCallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("state") != s.state {
		s.fail(fmt.Errorf("OAuth error: state mismatch"))
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		errMsg := query.Get("error")
		if errMsg == "" {
			errMsg = "no authorization code received"
		}
		s.fail(fmt.Errorf("OAuth error: %s", errMsg))
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	select {
	case s.codeChan <- code:
	default:
	}

	// Show success page
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `
<!DOCTYPE html>
<html>
<head>
	<title>tindico - Authorization Successful</title>
	<style>
		body {
			font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
			display: flex;
			justify-content: center;
			align-items: center;
			height: 100vh;
			margin: 0;
			background: #1d3557;
			color: white;
		}
		.container { text-align: center; padding: 40px; }
		h1 { font-size: 2em; margin-bottom: 16px; }
	</style>
</head>
<body>
	<div class="container">
		<h1>Google Calendar connected</h1>
		<p>You can close this window and return to tindico.</p>
	</div>
</body>
</html>
`)
}

// Authorize runs the browser consent flow for config and returns the token.
// open is called with the consent URL.
func Authorize(ctx context.Context, config *oauth2.Config, open func(url string) error, logger zerolog.Logger) (*oauth2.Token, error) {
	state := uuid.NewString()
	server, err := NewOAuthCallbackServer(state, logger)
	if err != nil {
		return nil, err
	}
	server.Start()
	defer server.Stop(context.Background())

	cfg := *config
	cfg.RedirectURL = server.GetRedirectURL()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	if err := open(authURL); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", authURL, err)
	}

	code, err := server.WaitForCode(ctx)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}
