// Package server hosts the Fiber HTTP service and its request middleware
// chain. It builds the application, assigns request identifiers, recovers
// handler panics and binds the single Alpine package route to an injected
// proxy handler. Diagnostics endpoints live in the routes subpackage and are
// attached by the caller, so keep exports narrow and accept explicit
// dependencies.
package server
