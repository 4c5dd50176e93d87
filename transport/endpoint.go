package transport

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/vinayprograms/wsrpc/errors"
)

// Endpoint is a websocket URL plus the headers sent with every handshake.
// It is immutable; accessors return copies.
type Endpoint struct {
	url    string
	header http.Header
}

// NewEndpoint normalizes raw to a websocket URL. http and https are rewritten
// to ws and wss; ws and wss are kept; any other scheme is rejected.
func NewEndpoint(raw string, headers map[string]string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "parsing endpoint")
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return Endpoint{}, errors.Newf(errors.ErrCodeInvalidInput, "unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Endpoint{}, errors.InvalidInput("endpoint has no host")
	}

	header := make(http.Header, len(headers))
	for k, v := range headers {
		header.Set(k, v)
	}
	return Endpoint{url: u.String(), header: header}, nil
}

// URL returns the normalized websocket URL.
func (e Endpoint) URL() string {
	return e.url
}

// Header returns a copy of the handshake headers.
func (e Endpoint) Header() http.Header {
	return e.header.Clone()
}

func (e Endpoint) String() string {
	return e.url
}
