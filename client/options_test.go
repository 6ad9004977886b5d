package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type OptionsSuite struct {
	suite.Suite
}

func TestOptionsSuite(t *testing.T) {
	suite.Run(t, new(OptionsSuite))
}

func (s *OptionsSuite) TestNewHTTPClientDefaults() {
	c := NewHTTPClient()
	s.Equal(time.Duration(defaultHTTPTimeoutSeconds)*time.Second, c.Timeout)
	s.NotNil(c.Transport)
	s.Nil(c.CheckRedirect)
}

func (s *OptionsSuite) TestHeaderAndNoRedirects() {
	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("X-Internal")
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(
		WithHTTPTimeout(2*time.Second),
		WithHTTPHeader("X-Internal", "error-page"),
		WithHTTPNoRedirects(),
		WithHTTPTelemetryDisabled(),
		WithHTTPTraceRequests(),
		WithHTTPTraceRequestHeaders(),
	)
	s.Equal(2*time.Second, c.Timeout)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	s.Require().NoError(err)

	resp, err := c.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusFound, resp.StatusCode)
	s.Equal("error-page", <-seen)
	s.Empty(req.Header.Get("X-Internal"), "caller request must not be mutated")
}

func (s *OptionsSuite) TestCustomTransport() {
	called := false
	rt := loggingRoundTripFunc(func(_ *http.Request) (*http.Response, error) {
		called = true
		return httptest.NewRecorder().Result(), nil
	})

	c := NewHTTPClient(WithHTTPTransport(rt), WithHTTPIdleTimeout(time.Second))
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.com", nil)
	s.Require().NoError(err)

	resp, err := c.Do(req)
	s.Require().NoError(err)
	s.NoError(resp.Body.Close())
	s.True(called)
}
