package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks the configuration for internal consistency. It is called
// by Load and by handlers that construct a Config programmatically.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("cluster_name is required")
	}
	if c.Role != RoleLeader && c.Role != RoleWorker {
		return fmt.Errorf("role must be %q or %q, got %q", RoleLeader, RoleWorker, c.Role)
	}
	if c.KubernetesVersion == "" {
		return fmt.Errorf("kubernetes_version is required")
	}

	if err := validateCIDR("network.pod_cidr", c.Network.PodCIDR); err != nil {
		return err
	}
	if err := validateCIDR("network.service_cidr", c.Network.ServiceCIDR); err != nil {
		return err
	}
	if overlaps(c.Network.PodCIDR, c.Network.ServiceCIDR) {
		return fmt.Errorf("pod_cidr %s overlaps service_cidr %s", c.Network.PodCIDR, c.Network.ServiceCIDR)
	}

	if c.Network.AdvertiseAddress != "" && net.ParseIP(c.Network.AdvertiseAddress) == nil {
		return fmt.Errorf("network.advertise_address %q is not a valid IP", c.Network.AdvertiseAddress)
	}

	switch c.Rendezvous.Backend {
	case BackendFile:
		if c.Rendezvous.MountPath == "" {
			return fmt.Errorf("rendezvous.mount_path is required for the file backend")
		}
	case BackendS3:
		if c.Rendezvous.S3.Bucket == "" || c.Rendezvous.S3.Endpoint == "" {
			return fmt.Errorf("rendezvous.s3.bucket and rendezvous.s3.endpoint are required for the s3 backend")
		}
	default:
		return fmt.Errorf("rendezvous.backend must be %q or %q, got %q", BackendFile, BackendS3, c.Rendezvous.Backend)
	}

	switch strings.ToUpper(c.Fabric.Encapsulation) {
	case "VXLAN", "IPIP", "NONE", "VXLANCROSSSUBNET", "IPIPCROSSSUBNET":
	default:
		return fmt.Errorf("fabric.encapsulation %q is not supported", c.Fabric.Encapsulation)
	}
	if c.Fabric.MTU < 0 || c.Fabric.MTU > 9000 {
		return fmt.Errorf("fabric.mtu %d is out of range", c.Fabric.MTU)
	}

	return nil
}

func validateCIDR(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, _, err := net.ParseCIDR(value); err != nil {
		return fmt.Errorf("%s %q is not a valid CIDR: %w", field, value, err)
	}
	return nil
}

// overlaps reports whether two CIDRs share any addresses. Parse errors are
// reported as non-overlap; validateCIDR runs first.
func overlaps(a, b string) bool {
	_, netA, errA := net.ParseCIDR(a)
	_, netB, errB := net.ParseCIDR(b)
	if errA != nil || errB != nil {
		return false
	}
	return netA.Contains(netB.IP) || netB.Contains(netA.IP)
}
