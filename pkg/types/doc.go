// Package types defines the core data structures for the bulletin
// processing orchestration engine.
//
// This package contains all the fundamental types used throughout the engine,
// including:
//   - Workflow and Task definitions
//   - Pipeline document states and stage transitions
//   - Events published on the internal bus
//   - Processing sessions and the shared error taxonomy
package types
