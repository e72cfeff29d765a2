// Package weaviate implements the search index on a remote Weaviate server.
//
// Articles and comments are stored as objects of the Article and Comment
// classes with deterministic UUIDv5 ids derived from their external ids, so
// an upsert is a batch import that overwrites the previous object. Queries
// use BM25 with where filters.
package weaviate
