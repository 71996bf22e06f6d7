// Package simdex is a paged similarity-search index engine. It stores
// objects in M-trees, MkMax-trees, R*-trees, RdKNN-trees or X-trees and
// answers range, k-nearest-neighbor and reverse k-nearest-neighbor queries.
//
// A tree lives in memory or in a single file, optionally memory mapped:
//
//	tree, err := simdex.OpenSpatial(simdex.RdKNNTree, 3, distance.Euclidean,
//	    simdex.WithPath("points.idx"), simdex.WithKMax(10))
//	if err != nil {
//	    return err
//	}
//	defer tree.Close()
//
//	if err := tree.Insert(1, []float64{0.1, 0.2, 0.3}); err != nil {
//	    return err
//	}
//	nn, err := tree.KNNQuery([]float64{0, 0, 0}, 5)
//
// Metric trees take any object type with a fixed-size Codec and a distance
// that satisfies the triangle inequality. Snapshot and Restore copy a tree
// to and from a blobstore.Store.
//
// A Tree is not safe for concurrent use.
package simdex
