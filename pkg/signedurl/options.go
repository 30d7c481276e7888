package signedurl

import (
	"fmt"
	"log/slog"
	"time"
)

// DefaultHostTemplate is the virtual-hosted endpoint of a bucket.
const DefaultHostTemplate = "%s.storage.googleapis.com"

// Option is a functional option shared by the V2 and V4 signers
type Option func(*settings)

type settings struct {
	now          func() time.Time
	hostTemplate string
	logger       *slog.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		now:          time.Now,
		hostTemplate: DefaultHostTemplate,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithClock replaces time.Now. V4 signatures embed the signing time, so a
// fixed clock makes them reproducible.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithHostTemplate sets the host a bucket is addressed by. The template gets
// the bucket name through a single %s verb.
// Default is "%s.storage.googleapis.com"
func WithHostTemplate(template string) Option {
	return func(s *settings) {
		s.hostTemplate = template
	}
}

// WithLogger sets the logger used for signing diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func (s settings) host(bucket string) string {
	return fmt.Sprintf(s.hostTemplate, bucket)
}
