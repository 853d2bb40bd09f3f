// Package chat is the public API for embedding the chat backend.
package chat

import (
	"github.com/tjfontaine/polyglot-chat/internal/runtime"
)

// App is the chat backend.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// New creates a new App with the given options.
// Example:
//
//	app, err := chat.New(
//	    chat.WithLogger(logger),
//	    chat.WithFileConfig("config.yaml"),
//	)
//	err = app.Run(ctx)
var New = runtime.New

// Configuration options
var (
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider
	WithAbortStore     = runtime.WithAbortStore
	WithHTTPClient     = runtime.WithHTTPClient
	WithLogger         = runtime.WithLogger
)
