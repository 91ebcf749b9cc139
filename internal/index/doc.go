// Package index maintains the live full-text search index.
//
// Two permanent physical slots (alpha and beta) exist under the index
// root; logical roles (active and staging) are bound to them through a
// flippable indirection. Reindex cycles rebuild the staging slot from
// scratch in bounded batches and then atomically swap the roles, so
// concurrent queries always see one fully-committed generation and never
// block on indexing.
package index
