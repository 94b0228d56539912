// Package rocketfilter rewrites the history of a git repository into a new
// branch by applying a commit filter and a tree filter to every reachable
// commit. It is a throughput- and parent-rewiring-oriented alternative to
// git filter-branch.
//
// See [Driver] for the entry point, [PatternSet] for the pattern language,
// and [CommitRewriter] for the rewrite algorithm itself.
package rocketfilter
