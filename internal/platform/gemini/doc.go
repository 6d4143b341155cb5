// Package gemini implements the upstream.Provider interface on top of
// Google's Gemini API using the google.golang.org/genai client.
//
// API errors are translated into upstream.StatusError values so that the
// upstream client can classify them. Safety blocks are reported as
// upstream.ErrRequestRejected, which the client treats as transient.
package gemini
