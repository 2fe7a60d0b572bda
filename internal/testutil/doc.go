// Package testutil contains fakes shared across package tests: a
// deterministic hash embedder, scripted and mocked models, and vector and run
// stores that fail on demand. They are not intended for production usage.
package testutil
