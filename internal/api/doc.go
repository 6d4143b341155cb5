// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting for the operator API. It acts as an adapter
// between HTTP clients and the service.Dispatcher.
package api
