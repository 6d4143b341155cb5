// Package openai implements the upstream.Provider interface against the
// OpenAI chat completions endpoint. Any server speaking the same protocol
// can be targeted by changing the base URL.
package openai
