package core

import "context"

// Submitter describes who started an import. It is logged with the session
// and never persisted.
type Submitter struct {
	IP        string
	UserAgent string
}

type submitterKey struct{}

// WithSubmitter attaches the submitting client to ctx.
func WithSubmitter(ctx context.Context, s Submitter) context.Context {
	return context.WithValue(ctx, submitterKey{}, s)
}

// SubmitterFrom returns the client stored by WithSubmitter, if any.
func SubmitterFrom(ctx context.Context) Submitter {
	s, _ := ctx.Value(submitterKey{}).(Submitter)
	return s
}
