// Package core provides the foundational domain types shared by every layer
// of assistmesh:
//
//   - Content and its parts (text, function calls, function responses)
//   - Turns and runs (the persisted conversation record)
//   - Documents and passages (knowledge base ingest and search)
//   - ToolContext (the scoped surface handed to tool implementations)
//   - The error taxonomy used across backends, storage and orchestration
//
// The package keeps implementation concerns (model vendors, vector stores,
// persistence drivers) out of scope so those packages can depend on it
// without depending on each other.
package core
