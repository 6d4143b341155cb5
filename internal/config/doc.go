// Package config loads agentkit settings from an optional agentkit.yaml and
// AGENTKIT_* environment variables, applies defaults and validates the
// result. Credential lists are parsed here so that every consumer sees the
// same ordered, de-duplicated list.
package config
