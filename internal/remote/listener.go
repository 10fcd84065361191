package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

const successPage = `<!DOCTYPE html>
<html><head><title>sync-bot</title></head>
<body><h1>Authorization complete</h1><p>You can close this window and return to sync-bot.</p></body></html>`

const failurePage = `<!DOCTYPE html>
<html><head><title>sync-bot</title></head>
<body><h1>Authorization failed</h1><p>%s</p></body></html>`

// ListenForCode serves the OAuth redirect on addr and returns the
// authorization code from the first request to "/". The listener is closed
// once that request is answered or ctx is done.
func ListenForCode(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listening on %s: %w", addr, err)
	}
	return serveCode(ctx, ln)
}

type codeResult struct {
	code string
	err  error
}

func serveCode(ctx context.Context, ln net.Listener) (string, error) {
	results := make(chan codeResult, 1)
	var once sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		handled := false
		once.Do(func() {
			handled = true
			res := codeFromRequest(r)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if res.err != nil {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintf(w, failurePage, res.err.Error())
			} else {
				fmt.Fprint(w, successPage)
			}
			results <- res
		})
		if !handled {
			http.Error(w, "authorization already handled", http.StatusGone)
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func codeFromRequest(r *http.Request) codeResult {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return codeResult{err: fmt.Errorf("authorization denied: %s", e)}
	}
	code := q.Get("code")
	if code == "" {
		return codeResult{err: errors.New("no authorization code in redirect")}
	}
	return codeResult{code: code}
}
