package log

import (
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

var ErrClientInit = errors.New("failed to initialize sentry client")

// NewSentryClient binds a new client to the current hub. mode is the gin run mode, anything other than
// release reports as development.
func NewSentryClient(dsn string, sampleRate float64, buildVersion string, mode string) (*sentry.Client, error) {
	env := "production"
	if mode != gin.ReleaseMode {
		env = "development"
	}

	client, errClient := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		EnableTracing:    sampleRate > 0,
		TracesSampleRate: sampleRate,
		SampleRate:       1.0,
		Release:          buildVersion,
		Environment:      env,
	})
	if errClient != nil {
		return nil, errors.Join(errClient, ErrClientInit)
	}

	sentry.CurrentHub().BindClient(client)

	return client, nil
}
