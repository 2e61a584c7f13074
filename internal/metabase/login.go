package metabase

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"goldpipe/internal/ui"
	"goldpipe/pkg/errors"
)

const loginPort = 34567

// OneClickLogin logs in and hands the session to a browser: a one-shot local
// HTTP server sets the session cookie and redirects to Metabase, so the
// operator lands in an authenticated UI without typing credentials.
func (a *Agent) OneClickLogin(ctx context.Context, printOnly bool) error {
	if err := a.client.Login(ctx, a.cfg.Email, a.cfg.Password); err != nil {
		return err
	}

	if printOnly {
		ui.ShowInfo(fmt.Sprintf("session: %s", a.client.Session()))
		return nil
	}

	parsed, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid Metabase base URL")
	}
	domain := parsed.Hostname()
	if domain == "" {
		domain = "localhost"
	}

	return serveLoginRedirect(ctx, a.client.Session(), a.cfg.BaseURL, domain)
}

// serveLoginRedirect binds a localhost listener, opens the browser at it, and
// answers exactly one request with the session cookie plus a redirect.
func serveLoginRedirect(ctx context.Context, session, target, domain string) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", loginPort))
	if err != nil {
		// Fixed port taken; any free port works for a one-shot redirect.
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to bind a local port")
		}
	}

	done := make(chan struct{})
	server := &http.Server{
		Handler: loginRedirectHandler(session, target, domain, done),
	}

	loginURL := fmt.Sprintf("http://%s/", listener.Addr().String())
	ui.ShowInfo(fmt.Sprintf("Opening browser: %s", loginURL))
	if err := openBrowser(loginURL); err != nil {
		ui.ShowWarning(fmt.Sprintf("open this URL in your browser manually: %s", loginURL))
	}

	go server.Serve(listener)
	defer server.Close()

	select {
	case <-done:
		// Give the redirect response a moment to flush.
		time.Sleep(200 * time.Millisecond)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loginRedirectHandler answers every request with the session cookie and a
// redirect to Metabase. Browsers follow up with extra requests (favicon), so
// done is signalled exactly once.
func loginRedirectHandler(session, target, domain string, done chan<- struct{}) http.Handler {
	var once sync.Once
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie := fmt.Sprintf(
			"metabase.SESSION=%s; Path=/; Domain=%s; HttpOnly; SameSite=Lax",
			session, domain)
		w.Header().Set("Set-Cookie", cookie)
		w.Header().Set("Location", target+"/")
		w.WriteHeader(http.StatusFound)
		fmt.Fprint(w, "Redirecting to Metabase ...")
		once.Do(func() { close(done) })
	})
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
