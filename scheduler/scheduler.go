// Package scheduler owns the process-wide job registry for the turnover
// backend. It registers one recurring daily trigger per venue, each firing at
// a configured wall-clock time in the configured timezone, and hands every
// firing to the ingestion pipeline as a fire-and-forget background run.
//
// Misfires are skipped: if the process was down at a trigger's fire time,
// that day's run simply does not happen. There is no catch-up or backfill.
//
// The scheduler also keeps the registry of live run handles so the admin API
// can observe in-flight runs and a future graceful shutdown can cancel them.
//
// The triggers are implemented in jobs.go.
package scheduler
