// Package manager owns loaded ONNX models: it resolves and parses sources,
// keeps the name to model bindings, and runs batched forward passes. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, lookups (List, Info, Metadata, Ready).
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: Model (reference counted) and Output.
//   - errors.go: Error with a Kind and predicate helpers (IsModelNotFound, ...).
//   - loader.go: source classification, remote fetch, parse, Load.
//   - unload.go: Unload and Close.
//   - inference.go: Predict and PredictBlob.
//   - autoload.go: directory scan and bulk load.
//   - status_report.go: Status reporting.
//   - sanity.go: SanityCheck and Preflight used by the doctor command.
//   - events.go / eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//
// Models are reference counted. The registry holds one reference per bound
// model and every prediction holds one for the duration of the forward pass,
// so unloading or replacing a model never invalidates a running prediction.
// The graph is closed by whichever release drops the count to zero.
package manager
