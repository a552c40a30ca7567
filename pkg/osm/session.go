package osm

import (
	"errors"
	"io"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/scoutreports/osmsync/internal/utils"
)

// ErrNotAuthenticated is returned when a request is attempted before a
// successful Authenticate call.
var ErrNotAuthenticated = errors.New("session is not authenticated")

// Session owns the credentials for one user and performs every network
// round-trip. All calls are blocking; there is no retrying and no
// concurrency, callers issue one request at a time.
type Session struct {
	server   string
	token    string
	apiID    string
	userName string
	password string

	// Set by Authenticate.
	userID string
	secret string

	client *retryablehttp.Client
}

// NewSession builds an unauthenticated session from settings.
func NewSession(settings *Settings) *Session {
	client := retryablehttp.NewClient()
	client.Logger = log.New(io.Discard, "", 0)
	// The mutation endpoints are not idempotent, so a transparent retry
	// could create duplicate meetings.
	client.RetryMax = 0

	return &Session{
		server:   strings.TrimSuffix(settings.Server, "/"),
		token:    settings.Token,
		apiID:    settings.APIID,
		userName: settings.UserName,
		password: settings.Password,
		client:   client,
	}
}

// Authenticated reports whether the handshake has completed.
func (s *Session) Authenticated() bool {
	return s.userID != "" && s.secret != ""
}

// Authenticate performs the authorise handshake and stores the returned
// user id and secret. Every later request carries both.
func (s *Session) Authenticate() error {
	form := url.Values{}
	form.Set("token", s.token)
	form.Set("apiid", s.apiID)
	form.Set("email", s.userName)
	form.Set("password", s.password)

	utils.Log.Debug("Authenticating as ", s.userName)
	body, err := s.postForm("/users.php?action=authorise", form)
	if err != nil {
		return err
	}

	resp := gjson.Parse(body)
	userID := resp.Get("userid")
	secret := resp.Get("secret")
	if !userID.Exists() || !secret.Exists() {
		return &AuthenticationError{Message: resp.Get("error").String()}
	}

	s.userID = userID.String()
	s.secret = secret.String()
	return nil
}

// Fetch downloads data from the server, injecting the session
// credentials, and returns the parsed JSON.
func (s *Session) Fetch(path string) (gjson.Result, error) {
	return s.Submit(path, url.Values{})
}

// Submit sends the given fields as form data with the session
// credentials merged in, and returns the parsed JSON. Some mutation
// endpoints return no body on success; that yields an empty object.
func (s *Session) Submit(path string, fields url.Values) (gjson.Result, error) {
	if !s.Authenticated() {
		return gjson.Result{}, ErrNotAuthenticated
	}

	form := url.Values{}
	for key, values := range fields {
		form[key] = values
	}
	form.Set("token", s.token)
	form.Set("apiid", s.apiID)
	form.Set("userid", s.userID)
	form.Set("secret", s.secret)

	body, err := s.postForm(path, form)
	if err != nil {
		return gjson.Result{}, err
	}
	if body == "" {
		return gjson.Parse("{}"), nil
	}
	if !gjson.Valid(body) {
		return gjson.Result{}, &DataShapeError{Path: path, Detail: "response is not valid JSON"}
	}
	return gjson.Parse(body), nil
}

// FetchBinary downloads a file from the server into filename. The file
// is overwritten in place; missing parent directories are the caller's
// problem. The write is not atomic.
func (s *Session) FetchBinary(path string, filename string) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	utils.Log.Debug("Downloading binary ", path, " to ", filename)
	req, err := retryablehttp.NewRequest("GET", s.server+path, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Status: resp.StatusCode, Path: path}
	}

	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func (s *Session) postForm(path string, form url.Values) (string, error) {
	req, err := retryablehttp.NewRequest("POST", s.server+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportError{Status: resp.StatusCode, Path: path}
	}

	return string(bodyBytes), nil
}
