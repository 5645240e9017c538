package rag

import "errors"

// Sentinel errors for the two external-capability boundaries and the ranking
// layer. Callers match them with [errors.Is]; wrapped messages carry the
// backend detail.
var (
	// ErrEmbeddingUnavailable indicates the external embedding call failed or
	// returned a malformed response. Ingestion treats this as fatal for the
	// whole document; interactive queries surface it as a retryable failure.
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")

	// ErrGenerationUnavailable indicates the external generation call failed
	// at the transport level. No partial conversation or extraction record is
	// written when this is returned.
	ErrGenerationUnavailable = errors.New("generation capability unavailable")

	// ErrMalformedOutput indicates the generation backend answered but its
	// reply contained no decodable JSON object. Callers degrade to field-level
	// defaults rather than failing the request.
	ErrMalformedOutput = errors.New("generation returned no parsable JSON object")

	// ErrDimensionMismatch indicates a stored vector's dimensionality
	// disagrees with the query vector. Fatal for that one candidate only —
	// ranking skips it and continues.
	ErrDimensionMismatch = errors.New("vector dimensionality mismatch")
)
