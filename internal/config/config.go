package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Node roles.
const (
	RoleLeader = "leader"
	RoleWorker = "worker"
)

// Rendezvous channel backends.
const (
	BackendFile = "file"
	BackendS3   = "s3"
)

// Default network ranges and artifact locations.
const (
	DefaultPodCIDR       = "10.244.0.0/16"
	DefaultServiceCIDR   = "10.96.0.0/12"
	DefaultMountPath     = "/mnt/cluster-shared"
	DefaultStateDir      = "/var/lib/clusterforge"
	DefaultAdminConfPath = "/etc/kubernetes/admin.conf"
)

// DefaultFabricVersion is the overlay network chart version installed when
// the config does not pin one.
const DefaultFabricVersion = "v3.28.2"

// Config is the bootstrap context handed to every component.
type Config struct {
	ClusterName       string           `mapstructure:"cluster_name"`
	Role              string           `mapstructure:"role"`
	KubernetesVersion string           `mapstructure:"kubernetes_version"`
	Network           NetworkConfig    `mapstructure:"network"`
	Fabric            FabricConfig     `mapstructure:"fabric"`
	Rendezvous        RendezvousConfig `mapstructure:"rendezvous"`
	StateDir          string           `mapstructure:"state_dir"`
	LogDir            string           `mapstructure:"log_dir"`
	Timeouts          *Timeouts        `mapstructure:"-"`
}

// NetworkConfig holds cluster-level address selections.
type NetworkConfig struct {
	PodCIDR     string `mapstructure:"pod_cidr"`
	ServiceCIDR string `mapstructure:"service_cidr"`

	// AdvertiseAddress is the leader address the API server advertises.
	// Empty means derive from the primary interface at init time.
	AdvertiseAddress string `mapstructure:"advertise_address"`

	// ControlPlaneEndpoint is the host:port workers probe for
	// connectivity. Defaults to <advertise_address>:6443 when empty.
	ControlPlaneEndpoint string `mapstructure:"control_plane_endpoint"`
}

// FabricConfig configures the overlay network fabric installation.
type FabricConfig struct {
	Version       string `mapstructure:"version"`
	Encapsulation string `mapstructure:"encapsulation"`
	MTU           int    `mapstructure:"mtu"`
}

// RendezvousConfig selects and configures the credential hand-off channel.
type RendezvousConfig struct {
	Backend   string   `mapstructure:"backend"`
	MountPath string   `mapstructure:"mount_path"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config configures the object-storage channel backend.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Default returns a Config with all defaults applied and no cluster
// identity set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration from a YAML file, applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	// #nosec G304 - path is the operator-supplied --config flag
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Config
	if err := mapstructure.Decode(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Network.PodCIDR == "" {
		c.Network.PodCIDR = DefaultPodCIDR
	}
	if c.Network.ServiceCIDR == "" {
		c.Network.ServiceCIDR = DefaultServiceCIDR
	}
	if c.Network.ControlPlaneEndpoint == "" && c.Network.AdvertiseAddress != "" {
		c.Network.ControlPlaneEndpoint = c.Network.AdvertiseAddress + ":6443"
	}
	if c.Rendezvous.Backend == "" {
		c.Rendezvous.Backend = BackendFile
	}
	if c.Rendezvous.MountPath == "" {
		c.Rendezvous.MountPath = DefaultMountPath
	}
	if c.Fabric.Version == "" {
		c.Fabric.Version = DefaultFabricVersion
	}
	if c.Fabric.Encapsulation == "" {
		c.Fabric.Encapsulation = "VXLAN"
	}
	if c.Fabric.MTU == 0 {
		c.Fabric.MTU = 1450
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.Timeouts == nil {
		c.Timeouts = LoadTimeouts()
	}
}
