// Package textindex provides an in-memory lexical search index over
// document content.
//
// The index maps tokens to the documents that contain them, with
// per-document term counts. Tokenization is case-insensitive and strips
// punctuation, preserving identifier-style tokens (letters, digits,
// underscore) so that code symbols like "authenticate_user" remain
// searchable as written.
//
// Key features:
//   - Build constructs the postings structure from a full corpus
//   - Add updates the index incrementally without a rebuild
//   - Search ranks matching documents by term-frequency score with
//     deterministic tie-breaking by insertion order
//   - ContentCache serves document content for snippet extraction
//     through a bounded LRU with per-entry TTL, so repeated large
//     reads hit memory instead of the backing loader
//
// Example usage:
//
//	idx := textindex.New()
//	idx.Build([]textindex.Entry{
//		{FileID: "auth/login.go", Content: "func authenticate_user(...)"},
//	})
//	matches := idx.Search("authenticate_user", 10)
//
// All methods are safe for concurrent use.
package textindex
