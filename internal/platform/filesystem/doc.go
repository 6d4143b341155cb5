// Package filesystem provides a store.Backend on top of an afero
// filesystem. Writes go through a temporary file and a rename so that a
// crash never leaves a half written snapshot behind.
package filesystem
