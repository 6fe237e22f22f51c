// Package retry provides the two retry shapes used across the bootstrap
// components: exponential backoff for flaky one-shot operations, and
// fixed-interval bounded polling for readiness waits.
//
// [Poll] and [PollAttempts] back every readiness wait in the repository
// (control-plane liveness, credential arrival, kubelet registration, and
// the fabric convergence waits) so the timeout behaviour is uniform.
package retry
