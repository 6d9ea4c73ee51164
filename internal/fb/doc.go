// Package fb implements the engine.Unit contract for function blocks built
// from a static interface Spec and an algorithm callback.
package fb
