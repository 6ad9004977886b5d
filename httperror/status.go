// Package httperror normalizes failed responses into the statuses a site
// has error pages for, and renders those pages.
package httperror

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/pitabwire/sitekit/config"
)

// Status is an HTTP error status the site knows about.
type Status int

const (
	StatusBadRequest                  Status = 400
	StatusUnauthorized                Status = 401
	StatusPaymentRequired             Status = 402
	StatusForbidden                   Status = 403
	StatusNotFound                    Status = 404
	StatusMethodNotAllowed            Status = 405
	StatusNotAcceptable               Status = 406
	StatusProxyAuthRequired           Status = 407
	StatusRequestTimeout              Status = 408
	StatusConflict                    Status = 409
	StatusGone                        Status = 410
	StatusLengthRequired              Status = 411
	StatusPreconditionFailed          Status = 412
	StatusPayloadTooLarge             Status = 413
	StatusURITooLong                  Status = 414
	StatusUnsupportedMediaType        Status = 415
	StatusRangeNotSatisfiable         Status = 416
	StatusExpectationFailed           Status = 417
	StatusTeapot                      Status = 418
	StatusMisdirectedRequest          Status = 421
	StatusUnprocessableEntity         Status = 422
	StatusLocked                      Status = 423
	StatusFailedDependency            Status = 424
	StatusTooEarly                    Status = 425
	StatusUpgradeRequired             Status = 426
	StatusPreconditionRequired        Status = 428
	StatusTooManyRequests             Status = 429
	StatusRequestHeaderFieldsTooLarge Status = 431
	StatusUnavailableForLegalReasons  Status = 451
	StatusServerError                 Status = 500
	StatusNotImplemented              Status = 501
	StatusBadGateway                  Status = 502
	StatusServiceUnavailable          Status = 503
	StatusGatewayTimeout              Status = 504
	StatusHTTPVersionNotSupported     Status = 505
	StatusVariantAlsoNegotiates       Status = 506
	StatusInsufficientStorage         Status = 507
	StatusLoopDetected                Status = 508
	StatusNotExtended                 Status = 510
	StatusNetworkAuthRequired         Status = 511
)

var knownStatuses = []Status{
	400, 401, 402, 403, 404, 405, 406, 407, 408, 409, 410, 411, 412, 413, 414, 415, 416, 417, 418,
	421, 422, 423, 424, 425, 426, 428, 429, 431, 451,
	500, 501, 502, 503, 504, 505, 506, 507, 508, 510, 511,
}

// Known reports whether code is one of the recognized error statuses.
func Known(code int) bool {
	_, found := slices.BinarySearch(knownStatuses, Status(code))
	return found
}

// KnownStatuses lists every recognized error status in ascending order.
func KnownStatuses() []Status {
	return slices.Clone(knownStatuses)
}

func (s Status) Int() int {
	return int(s)
}

func (s Status) String() string {
	return strconv.Itoa(int(s))
}

// Text is the standard reason phrase of the status.
func (s Status) Text() string {
	return http.StatusText(int(s))
}

func (s Status) IsServerError() bool {
	return s >= 500
}

// Normalizer maps arbitrary status codes onto the configured supported set.
type Normalizer struct {
	cfg config.Errors
}

func NewNormalizer(cfg config.Errors) *Normalizer {
	return &Normalizer{cfg: cfg}
}

func (n *Normalizer) Enabled() bool {
	return n.cfg.Enabled
}

// Normalize returns 404 for unrecognized codes, supported codes unchanged,
// and otherwise the server or client error fallback.
func (n *Normalizer) Normalize(code int) Status {
	if !Known(code) {
		return StatusNotFound
	}

	if slices.Contains(n.cfg.Supported, code) {
		return Status(code)
	}

	if code >= http.StatusInternalServerError {
		return Status(n.cfg.Fallback.ServerError)
	}
	return Status(n.cfg.Fallback.ClientError)
}
