package httperror

import (
	"context"
	"fmt"
)

type contextKey string

func (c contextKey) String() string {
	return "sitekit/httperror/" + string(c)
}

const ctxKeyState = contextKey("stateKey")

// State is the error outcome of a single request.
type State struct {
	status  Status
	message string
	failure error
}

// NewState starts a request with the not found status.
func NewState() *State {
	return &State{status: StatusNotFound}
}

// Set normalizes code, stores it as the request status and returns it.
func (s *State) Set(n *Normalizer, code int) Status {
	s.status = n.Normalize(code)
	return s.status
}

func (s *State) Status() Status {
	return s.status
}

func (s *State) Message() string {
	return s.message
}

// SetMessage records a diagnostic shown in place of the status description.
func (s *State) SetMessage(message string) {
	s.message = message
}

// Fail records a handler failure for the error middleware.
func (s *State) Fail(err error) {
	s.failure = err
}

// Failure is the error recorded by Fail, nil when the handler succeeded.
func (s *State) Failure() error {
	return s.failure
}

// ToContext adds the request error state to the supplied context.
func ToContext(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, ctxKeyState, state)
}

// FromContext extracts the request error state, nil outside of the error middleware.
func FromContext(ctx context.Context) *State {
	state, ok := ctx.Value(ctxKeyState).(*State)
	if !ok {
		return nil
	}
	return state
}

// Translator looks up a key in the request language.
type Translator interface {
	Translate(ctx context.Context, key string) string
}

// TitleKey is the translation key of the status title.
func TitleKey(status Status) string {
	return fmt.Sprintf("error.%d.title", status)
}

// DescriptionKey is the translation key of the status description.
func DescriptionKey(status Status) string {
	return fmt.Sprintf("error.%d.description", status)
}

func Title(ctx context.Context, t Translator, status Status) string {
	return t.Translate(ctx, TitleKey(status))
}

func Description(ctx context.Context, t Translator, status Status) string {
	return t.Translate(ctx, DescriptionKey(status))
}
