package osm

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// fakeServer mimics the membership service: every endpoint is selected
// by its action parameter, responses are canned JSON set per test.
type fakeServer struct {
	*httptest.Server
	responses map[string]string
	statuses  map[string]int
	requests  []capturedRequest
}

type capturedRequest struct {
	action string
	form   url.Values
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fake := &fakeServer{
		responses: map[string]string{},
		statuses:  map[string]int{},
	}
	fake.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("bad form in request to %s: %v", r.URL, err)
		}
		action := actionKey(r.Form)
		fake.requests = append(fake.requests, capturedRequest{action: action, form: r.Form})

		if status, ok := fake.statuses[action]; ok {
			w.WriteHeader(status)
			return
		}
		body, ok := fake.responses[action]
		if !ok {
			t.Fatalf("no canned response for action %q", action)
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(fake.Close)

	// Successful handshake by default; failure tests override it.
	fake.respond("authorise", `{"userid": "u100", "secret": "sekrit"}`)
	return fake
}

// actionKey disambiguates the one action that is fetched twice with
// different type ids.
func actionKey(form url.Values) string {
	action := form.Get("action")
	if action == "getBadgeStructureByType" {
		return action + ":" + form.Get("type_id")
	}
	return action
}

func (f *fakeServer) respond(action, body string) {
	f.responses[action] = body
}

func (f *fakeServer) respondStatus(action string, status int) {
	f.statuses[action] = status
}

// requestsFor returns every captured request for an action.
func (f *fakeServer) requestsFor(action string) []capturedRequest {
	var out []capturedRequest
	for _, req := range f.requests {
		if req.action == action {
			out = append(out, req)
		}
	}
	return out
}

func (f *fakeServer) settings() *Settings {
	return &Settings{
		Server:   f.URL,
		Token:    "tok",
		APIID:    "42",
		UserName: "leader@example.com",
		Password: "hunter2",
	}
}

// session returns an authenticated session against the fake server.
func (f *fakeServer) session(t *testing.T) *Session {
	t.Helper()
	sess := NewSession(f.settings())
	if err := sess.Authenticate(); err != nil {
		t.Fatalf("authenticate against fake server: %v", err)
	}
	return sess
}

// testTerm builds a minimal wired section/term pair for resource tests.
func testTerm(t *testing.T) *Term {
	t.Helper()
	section := &Section{ID: "15", Name: "Kea", Type: "cubs", Group: "1st Example"}
	term := &Term{ID: "77", Name: "Term 3", Section: section}
	section.Terms = []*Term{term}
	return term
}
