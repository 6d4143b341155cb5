// Package generation provides the reference worker of the engine. It turns
// a concept into a markdown note by asking the language model and writing
// the answer to the output directory.
package generation
