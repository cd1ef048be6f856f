/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package secretstore

import (
	"net/http"

	"github.com/go-logr/logr"

	"github.com/buun-ch/buun-stack/pkg/vault/token"
	"github.com/buun-ch/buun-stack/shared/events"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	log         logr.Logger
	logSet      bool
	bus         *events.EventBus
	httpClient  *http.Client
	tokenSource token.TokenSource
}

func defaultOptions() *options {
	return &options{log: logr.Discard()}
}

// WithLogger sets the logger. Without it the Store logs through a zap
// logger when a log level is configured, and discards output otherwise.
func WithLogger(log logr.Logger) Option {
	return func(o *options) {
		o.log = log
		o.logSet = true
	}
}

// WithEventBus publishes token and secret events to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(o *options) {
		o.bus = bus
	}
}

// WithHTTPClient sets the client used for identity provider calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithTokenSource overrides where a provisioned Vault token is read from.
func WithTokenSource(source token.TokenSource) Option {
	return func(o *options) {
		o.tokenSource = source
	}
}
