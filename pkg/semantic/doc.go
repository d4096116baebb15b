// Package semantic defines the similarity-matching capability the engine
// consumes, plus an HTTP client for a remote embedding service.
//
// The engine never embeds text itself. It asks a Matcher which rules have a
// semantic exemplar whose similarity to the message is at or above a
// threshold, then filters the candidates by rule identity. Similarity is
// 1 - distance for cosine-normalized vectors; any backend that honors the
// threshold contract can serve.
package semantic
