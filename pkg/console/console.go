// Package console provides the public API for embedding the helpdesk
// console. This is the stable surface for external consumers.
package console

import (
	"github.com/gamedesk/helpdesk-console/internal/runtime"
)

// Console is the main entry point for running the helpdesk console.
// See internal/runtime.Console for full documentation.
type Console = runtime.Console

// Option is a functional option for configuring a Console.
type Option = runtime.Option

// New creates a new Console with the given options.
// Example:
//
//	c, err := console.New(
//	    console.WithFileConfig("config.yaml"),
//	    console.WithSQLite("./data/console.db"),
//	)
var New = runtime.New

var (
	// Config sources
	WithFileConfig = runtime.WithFileConfig

	// Backend and listener
	WithBackendURL = runtime.WithBackendURL
	WithListenAddr = runtime.WithListenAddr

	// Storage
	WithSQLite        = runtime.WithSQLite
	WithSettingsStore = runtime.WithSettingsStore

	// Advanced options
	WithChannelDialer = runtime.WithChannelDialer
	WithNotifier      = runtime.WithNotifier
	WithLogger        = runtime.WithLogger
)
