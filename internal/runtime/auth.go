package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"golang.org/x/oauth2"
	gapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	gc "github.com/joshsymonds/frontporter/internal/gmail"
)

// NewGmailClient builds the Gmail client for the run. Credentials come from
// the gmailctl config directory (the localcred provider drives the OAuth flow
// on first use and fixes the granted scopes itself); interactive capture and
// token storage live there, not here. readOnly must be true for dry runs so
// writes are rejected at the client regardless of what the grant allows.
func NewGmailClient(ctx context.Context, cfgDir string, readOnly bool, logger *slog.Logger) (gc.Client, error) {
	svc, err := (localcred.Provider{}).Service(ctx, cfgDir)
	if err != nil {
		return nil, fmt.Errorf("gmail credentials from %s: %w", cfgDir, err)
	}
	return NewGoogleAPIClient(svc, readOnly, logger), nil
}

// NewGmailClientFromToken builds the client from an already issued OAuth
// token, for environments where the session collaborator hands us one
// directly instead of going through the localcred flow.
func NewGmailClientFromToken(ctx context.Context, accessToken, refreshToken string, readOnly bool, logger *slog.Logger) (gc.Client, error) {
	if accessToken == "" && refreshToken == "" {
		return nil, fmt.Errorf("gmail: no session token provided")
	}
	tok := &oauth2.Token{AccessToken: accessToken, RefreshToken: refreshToken}
	cfg := &oauth2.Config{Scopes: []string{gapi.GmailModifyScope}}
	httpClient := cfg.Client(ctx, tok)
	svc, err := gapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGoogleAPIClient(svc, readOnly, logger), nil
}

// DefaultLogger returns the process-wide text logger used by the binaries.
func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// LoggerWithLevel returns a text logger at the given minimum verbosity.
func LoggerWithLevel(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
