package osm

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuthenticateStoresCredentials(t *testing.T) {
	fake := newFakeServer(t)
	sess := NewSession(fake.settings())

	if sess.Authenticated() {
		t.Fatal("session claims to be authenticated before the handshake")
	}
	if err := sess.Authenticate(); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !sess.Authenticated() {
		t.Fatal("session not authenticated after successful handshake")
	}

	reqs := fake.requestsFor("authorise")
	if len(reqs) != 1 {
		t.Fatalf("expected 1 authorise request, got %d", len(reqs))
	}
	form := reqs[0].form
	if form.Get("email") != "leader@example.com" || form.Get("password") != "hunter2" {
		t.Fatalf("handshake did not carry the credentials: %v", form)
	}
	if form.Get("token") != "tok" || form.Get("apiid") != "42" {
		t.Fatalf("handshake did not carry token/apiid: %v", form)
	}
}

func TestAuthenticateFailureCarriesServerError(t *testing.T) {
	fake := newFakeServer(t)
	fake.respond("authorise", `{"error": "Incorrect password"}`)

	sess := NewSession(fake.settings())
	err := sess.Authenticate()
	if err == nil {
		t.Fatal("expected an error from a failed handshake")
	}
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %T: %v", err, err)
	}
	if !strings.Contains(authErr.Error(), "Incorrect password") {
		t.Fatalf("error does not carry the server message: %v", authErr)
	}
	if sess.Authenticated() {
		t.Fatal("session must stay unusable after a failed handshake")
	}
}

func TestFetchRequiresAuthentication(t *testing.T) {
	fake := newFakeServer(t)
	sess := NewSession(fake.settings())

	if _, err := sess.Fetch("/api.php?action=getTerms"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestFetchInjectsSessionCredentials(t *testing.T) {
	fake := newFakeServer(t)
	fake.respond("getTerms", `{}`)
	sess := fake.session(t)

	if _, err := sess.Fetch("/api.php?action=getTerms"); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	reqs := fake.requestsFor("getTerms")
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	form := reqs[0].form
	for _, key := range []string{"token", "apiid", "userid", "secret"} {
		if form.Get(key) == "" {
			t.Fatalf("request is missing credential %q: %v", key, form)
		}
	}
	if form.Get("userid") != "u100" || form.Get("secret") != "sekrit" {
		t.Fatalf("request carries wrong session credentials: %v", form)
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	fake := newFakeServer(t)
	fake.respondStatus("getTerms", http.StatusBadGateway)
	sess := fake.session(t)

	_, err := sess.Fetch("/api.php?action=getTerms")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
	if transportErr.Status != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", transportErr.Status)
	}
}

func TestSubmitEmptyBodyYieldsEmptyObject(t *testing.T) {
	fake := newFakeServer(t)
	fake.respond("editEveningParts", "")
	sess := fake.session(t)

	result, err := sess.Submit("/ext/programme/?action=editEveningParts", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.IsObject() || len(result.Map()) != 0 {
		t.Fatalf("expected an empty object result, got %q", result.Raw)
	}
}

func TestSubmitRejectsInvalidJSON(t *testing.T) {
	fake := newFakeServer(t)
	fake.respond("getMembers", "<html>maintenance</html>")
	sess := fake.session(t)

	_, err := sess.Submit("/ext/members/contact/grid/?action=getMembers", nil)
	var shapeErr *DataShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected DataShapeError, got %T: %v", err, err)
	}
}

func TestFetchBinaryWritesAndOverwrites(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	sess := NewSession(&Settings{Server: srv.URL, Token: "t", APIID: "1", UserName: "u", Password: "p"})
	dest := filepath.Join(t.TempDir(), "badge.png")
	if err := os.WriteFile(dest, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	// No leading separator on purpose; FetchBinary must add it.
	if err := sess.FetchBinary("images/badge.png", dest); err != nil {
		t.Fatalf("fetch binary: %v", err)
	}
	if gotPath != "/images/badge.png" {
		t.Fatalf("path was not normalized, server saw %q", gotPath)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("destination was not overwritten, got %q", data)
	}
}

func TestFetchBinaryDoesNotCreateParentDirs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	sess := NewSession(&Settings{Server: srv.URL, Token: "t", APIID: "1", UserName: "u", Password: "p"})
	dest := filepath.Join(t.TempDir(), "missing", "file.bin")
	if err := sess.FetchBinary("/file.bin", dest); err == nil {
		t.Fatal("expected an error when the parent directory does not exist")
	}
}
