// Package resilience holds the helpers the orchestrator wraps around stages:
// retry with exponential backoff, checkpoint stores for resuming failed runs,
// and an alert hook counting stage failures.
//
// None of these helpers decide control flow on their own. Retry re-invokes a
// function until a Policy is exhausted and hands back the last error. A
// checkpoint records the last completed stage so a later run can start after
// it. The alert handler counts failures and notifies its sinks.
//
// Three CheckpointStore implementations are provided: FileStore (JSON files
// next to the run logs), RedisStore (shared between workers) and SQLiteStore
// (a single local database file).
package resilience
