package google

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// localAuthServer receives the OAuth redirect on localhost. The state
// echoed back by the provider must match the one the flow started with,
// otherwise the code is rejected.
type localAuthServer struct {
	server *http.Server
	state  string
	codeCh chan string
	errCh  chan error
}

func newLocalAuthServer(port int, state string) *localAuthServer {
	s := &localAuthServer{
		state:  state,
		codeCh: make(chan string, 1),
		errCh:  make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errMsg := q.Get("error"); errMsg != "" {
			s.errCh <- fmt.Errorf("provider denied authorization: %s", errMsg)
			http.Error(w, "Authorization denied. You can close this window.", http.StatusBadRequest)
			return
		}
		if q.Get("state") != s.state {
			s.errCh <- fmt.Errorf("callback state mismatch")
			http.Error(w, "Invalid authorization state.", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			s.errCh <- fmt.Errorf("callback missing code parameter")
			http.Error(w, "Missing authorization code.", http.StatusBadRequest)
			return
		}
		s.codeCh <- code
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("localhost:%d", port),
		Handler: mux,
	}
	return s
}

func (s *localAuthServer) Start() error {
	ln := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ln <- err
		}
	}()
	// Give the listener a moment to fail fast on a busy port.
	select {
	case err := <-ln:
		return err
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

func (s *localAuthServer) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

// WaitForCode blocks until the redirect arrives, the flow errors, or the
// timeout elapses.
func (s *localAuthServer) WaitForCode(ctx context.Context, timeout time.Duration) (string, error) {
	select {
	case code := <-s.codeCh:
		return code, nil
	case err := <-s.errCh:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(timeout):
		return "", fmt.Errorf("timed out waiting for authorization")
	}
}
