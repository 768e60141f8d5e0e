// Package enginetest provides a conformance suite and benchmarks for
// implementations of types.Engine.
//
// Every engine is expected to pass the same suite:
//
//	func TestEngine(t *testing.T) {
//		enginetest.RunEngineTests(t, "bolt", func(t *testing.T) types.Engine {
//			return bolt.NewEngine(t.TempDir(), zaptest.NewLogger(t))
//		})
//	}
//
// The factory is called once per test, and the returned engine is used for
// every open within that test, so reopening a database name must see the
// data written through an earlier connection.
package enginetest
