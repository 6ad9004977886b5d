// Package sitetests runs sitekit services inside tests.
package sitetests

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/sitekit"
)

type httpTestDriver struct {
	mu     sync.Mutex
	server *httptest.Server
}

// ListenAndServe starts an httptest server with h and returns straight away.
func (d *httpTestDriver) ListenAndServe(_ string, h http.Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.server == nil {
		d.server = httptest.NewServer(h)
	}
	return nil
}

func (d *httpTestDriver) Shutdown(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.server != nil {
		d.server.Close()
	}
	return nil
}

// Origin is the URL of the httptest server, empty before ListenAndServe.
func (d *httpTestDriver) Origin() string {
	if ts := d.get(); ts != nil {
		return ts.URL
	}
	return ""
}

func (d *httpTestDriver) get() *httptest.Server {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.server
}

// WithHTTPTestDriver serves the service pipeline from an httptest server. The
// getter returns that server once Run has been called, nil before.
func WithHTTPTestDriver() (sitekit.Option, func() *httptest.Server) {
	driver := &httpTestDriver{}
	return sitekit.WithDriver(driver), driver.get
}

// GetFreePort asks the kernel for a free local tcp port.
func GetFreePort(ctx context.Context) (int, error) {
	a, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", a)
	if err != nil {
		return 0, err
	}
	defer util.CloseAndLogOnError(ctx, l)

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, &net.AddrError{Err: "not a tcp address", Addr: l.Addr().String()}
	}
	return addr.Port, nil
}
