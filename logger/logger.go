// Package logger adapts popular logging libraries to simdex.Logger.
//
// slog.Logger already satisfies simdex.Logger and needs no adapter.
//
// A tree logs few events, all with key/value pairs:
//
//   - Info "opened tree" with the variant, path and node capacities
//   - Info "snapshot exported" with the snapshot name and segment count
//   - Warn "small node capacity" when the page size leaves fewer than ten
//     entries per node
//   - Warn "supernode at block limit, forcing split" from the X-Tree
//   - Error "failed to commit header on close" and "failed to close store"
//
// Errors returned from tree operations are not logged.
//
//	zl, _ := zap.NewProduction()
//	tree, err := simdex.OpenSpatial(simdex.RStarTree, 8, distance.Euclidean,
//	    simdex.WithPath("vectors.idx"),
//	    simdex.WithLogger(logger.NewZap(zl)))
package logger
