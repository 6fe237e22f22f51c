// Package config defines the explicit bootstrap context passed into every
// component: cluster identity, node role, network ranges, rendezvous
// channel settings, and timeouts. Nothing reads ambient environment state
// except the documented timeout overrides.
package config
