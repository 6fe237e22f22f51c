// Package rendezvous implements the one-slot mailbox through which the
// control-plane leader hands the join credential to workers.
//
// The channel is single-writer (the leader publishes once per cluster
// lifetime), multi-reader, lockless, and best-effort durable: the latest
// publish silently supersedes any prior artifact. Callers must treat every
// read as untrusted input and validate it with [ParseJoinCommand] before
// acting on it.
//
// Two backings exist: a directory on a shared mount (the default) and an
// S3-compatible bucket for provisioning layers that attach object storage
// instead of a network filesystem.
package rendezvous
