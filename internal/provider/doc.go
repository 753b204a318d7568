// Package provider implements the closed set of embedding provider
// clients: Ollama, SentenceTransformer, OpenAI, and HuggingFace, plus
// a deterministic mock for tests.
//
// Every client implements the single Client capability, EmbedBatch,
// so the gateway can treat all kinds uniformly during failover. The
// OpenAI client is built on github.com/sashabaranov/go-openai; the
// self-hosted kinds speak plain JSON over HTTP.
//
// # Error Classification
//
// Clients map failures onto two sentinels. ErrTransient covers
// timeouts, connection errors, and 5xx/429/408 responses; the gateway
// retries these on the same backend with backoff. ErrPermanent covers
// rejected requests; the gateway fails over immediately without
// burning retries. Use IsTransient to classify.
//
// # Adding a Kind
//
// The provider set is intentionally closed and mirrored by
// registry.Kind. A new kind needs a registry constant, a Client
// implementation here, and a case in New.
package provider
