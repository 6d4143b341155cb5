// Package upstream provides the resilient language model client used by
// workers.
//
// A CredentialPool tracks the credentials of each provider and puts a
// credential into cooldown after a quota or auth failure. The Client walks
// the usable credentials of the primary provider, bounding every attempt by
// a timeout, and fails over once to a fallback provider. When nothing is
// left to try it returns an error that wraps ErrFatalUpstream, which the
// task engine treats as a signal to halt.
package upstream
