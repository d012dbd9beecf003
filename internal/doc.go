// Package internal documents the Planzy server internals.
//
// The internal tree is organized by responsibility:
// - domain: business logic and domain models (events, places, artists, tags)
// - scraper: portal adapters and the scrape orchestrator
// - storage: database access and repositories (pgx + Postgres + pgvector)
// - embedding: vectorization and similarity search
// - jobs: background workers and queues (River)
// - config, metrics, resilience, sanitize, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
