package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/vishnu-kyatannawar/sync-bot/internal/syncbot"
)

// MaxRetries bounds the counted attempts of one remote request.
const MaxRetries = 3

// exhaustedError is returned when every attempt failed with an HTTP error.
type exhaustedError struct {
	attempts int
	err      *googleapi.Error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: status %d: %s",
		e.attempts, e.err.Code, strings.TrimSpace(e.err.Body))
}

func (e *exhaustedError) Unwrap() error { return e.err }

// isAuthError reports whether err is an HTTP 401 from the API.
func isAuthError(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized
}

// withRetry runs op with a working token, at most MaxRetries counted times.
// Every attempt starts by ensuring authentication. When isAuth matches the
// error of op, the token is refreshed once and the attempt is repeated
// without counting it. Missing or rejected credentials end the loop at once.
func (d *DriveRemote) withRetry(ctx context.Context, op func(ctx context.Context, tok *oauth2.Token) error, isAuth func(error) bool) error {
	var lastErr error
	refreshed := false

	for attempt := 1; attempt <= MaxRetries; {
		if err := ctx.Err(); err != nil {
			return err
		}

		tok, err := d.ensureToken(ctx)
		if err == nil {
			err = op(ctx, tok)
			if err == nil {
				return nil
			}
			if isAuth(err) && !refreshed {
				refreshed = true
				d.logger.Debug("request unauthorized, refreshing token")
				_, err = d.refresh(ctx, tok)
				if err == nil {
					continue
				}
			}
		}
		if errors.Is(err, syncbot.ErrNotAuthenticated) {
			return err
		}

		lastErr = err
		d.logger.Warn("remote request failed", "attempt", attempt, "max", MaxRetries, "error", err)
		if attempt < MaxRetries && d.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * d.retryDelay):
			}
		}
		attempt++
	}

	var gerr *googleapi.Error
	if errors.As(lastErr, &gerr) {
		return &exhaustedError{attempts: MaxRetries, err: gerr}
	}
	return fmt.Errorf("giving up after %d attempts: %w", MaxRetries, lastErr)
}

// ensureToken loads the stored token and makes sure it is accepted by the
// API, refreshing it when absent or rejected.
func (d *DriveRemote) ensureToken(ctx context.Context) (*oauth2.Token, error) {
	tok, err := d.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading tokens: %w", err)
	}
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, fmt.Errorf("%w: run `syncbot auth login` first", syncbot.ErrNotAuthenticated)
	}
	if tok.AccessToken == "" {
		return d.refresh(ctx, tok)
	}

	if err := d.checkToken(ctx, tok); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Debug("token check failed, refreshing", "error", err)
		return d.refresh(ctx, tok)
	}
	return tok, nil
}

// refresh exchanges the refresh token for a new access token and saves it.
// Refusal by the token endpoint wraps ErrNotAuthenticated; transport
// failures do not.
func (d *DriveRemote) refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil || tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token, run `syncbot auth login`", syncbot.ErrNotAuthenticated)
	}
	if d.oauth.ClientID == "" || d.oauth.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client id and secret are not configured", syncbot.ErrNotAuthenticated)
	}

	src := d.oauth.TokenSource(d.oauthContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode < http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: refresh rejected: %v", syncbot.ErrNotAuthenticated, err)
		}
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	if err := d.store.Save(fresh); err != nil {
		return nil, fmt.Errorf("saving tokens: %w", err)
	}
	d.logger.Info("access token refreshed")
	return fresh, nil
}
