// Package httpapi exposes the article, comment, search and sync services
// over HTTP with gin.
//
// Every response body is an envelope:
//
//	{"status": "ok", "message": "", "result": {...}}
//	{"status": "error", "message": "article a1: article not found"}
//
// Error kinds map to status codes: validation 400, not found 404,
// conflicts 409, invariant violations 422, search unavailable 503.
package httpapi
