package core

import "errors"

// Failure classes of the ingestion and recommendation pipelines.
// Callers wrap them with context and test with errors.Is.
var (
	// ErrCredential means no usable LMS token could be obtained. It aborts a whole run.
	ErrCredential = errors.New("lms credential unavailable")

	// ErrExtraction means the document could not be read at all.
	ErrExtraction = errors.New("document extraction failed")

	// ErrOCRPage is a single page OCR failure. It never escapes the extractor.
	ErrOCRPage = errors.New("ocr page failed")

	// ErrNoContent means extraction succeeded but produced no text to chunk.
	ErrNoContent = errors.New("no content extracted")

	// ErrEmbedding fails the whole chunk batch of a document.
	ErrEmbedding = errors.New("embedding failed")

	// ErrUpsert fails the document; earlier batches may already be committed.
	ErrUpsert = errors.New("vector upsert failed")

	// ErrRecommender is per topic and is cached as an empty result.
	ErrRecommender = errors.New("recommender call failed")

	// ErrObjectNotFound is returned by object storage for a missing key.
	ErrObjectNotFound = errors.New("object not found")
)
