package osm

import "fmt"

// AuthenticationError is returned when the authorise handshake does not
// yield a user id and secret. Message carries the server's error text.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Message
}

// TransportError is returned for any non-success HTTP status.
type TransportError struct {
	Status int
	Path   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d", e.Path, e.Status)
}

// DataShapeError is returned when a response is missing a field the
// client cannot recover from, or is not valid JSON at all.
type DataShapeError struct {
	Path   string
	Detail string
}

func (e *DataShapeError) Error() string {
	if e.Path == "" {
		return "unexpected response shape: " + e.Detail
	}
	return fmt.Sprintf("unexpected response shape from %s: %s", e.Path, e.Detail)
}

// ConfigurationError is returned when the settings or award-scheme file
// is missing, unreadable or incomplete.
type ConfigurationError struct {
	File   string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("bad configuration %s: %s", e.File, e.Detail)
}
