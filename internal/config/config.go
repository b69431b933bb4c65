package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service   ServiceConfig           `koanf:"service"`
	Router    RouterConfig            `koanf:"router"`
	Topology  TopologyConfig          `koanf:"topology"`
	Addresses map[string]AddressMeta  `koanf:"addresses"`
}

// AddressMeta is a configuration-time override for a provisioned address
// name, analogous to the teacher's Routers map[string]RouterMeta (spec
// section 10.1).
type AddressMeta struct {
	BypassValidOrigins bool `koanf:"bypass_valid_origins"`
}

type ServiceConfig struct {
	RouterArea             string `koanf:"router_area"`
	RouterID               string `koanf:"router_id"`
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
	Mode                   string `koanf:"mode"`
}

type RouterConfig struct {
	MaskBitWidth   int `koanf:"mask_bit_width"`
	InitialCredit  int `koanf:"initial_credit"`
	TickIntervalMs int `koanf:"tick_interval_ms"`
}

type TopologyConfig struct {
	Brokers       []string   `koanf:"brokers"`
	ClientID      string     `koanf:"client_id"`
	GroupID       string     `koanf:"group_id"`
	Topics        []string   `koanf:"topics"`
	FetchMaxBytes int32      `koanf:"fetch_max_bytes"`
	TLS           TLSConfig  `koanf:"tls"`
	SASL          SASLConfig `koanf:"sasl"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: ROUTERD_TOPOLOGY__BROKERS -> topology.brokers
	if err := k.Load(env.Provider("ROUTERD_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "ROUTERD_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			RouterArea:             "area1",
			InstanceID:             "router-node-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
			Mode:                   "interior",
		},
		Router: RouterConfig{
			MaskBitWidth:   256,
			InitialCredit:  1000,
			TickIntervalMs: 1000,
		},
		Topology: TopologyConfig{
			ClientID:      "router-node",
			GroupID:       "router-node-topology",
			FetchMaxBytes: 52428800,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Split comma-separated env strings for slice fields.
	if len(cfg.Topology.Brokers) == 1 && strings.Contains(cfg.Topology.Brokers[0], ",") {
		cfg.Topology.Brokers = strings.Split(cfg.Topology.Brokers[0], ",")
	}
	if len(cfg.Topology.Topics) == 1 && strings.Contains(cfg.Topology.Topics[0], ",") {
		cfg.Topology.Topics = strings.Split(cfg.Topology.Topics[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Service.RouterArea == "" {
		return fmt.Errorf("config: service.router_area is required")
	}
	if c.Service.RouterID == "" {
		return fmt.Errorf("config: service.router_id is required")
	}
	switch c.Service.Mode {
	case "standalone", "interior", "edge":
	default:
		return fmt.Errorf("config: service.mode must be one of standalone|interior|edge (got %q)", c.Service.Mode)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Router.MaskBitWidth <= 0 {
		return fmt.Errorf("config: router.mask_bit_width must be > 0 (got %d)", c.Router.MaskBitWidth)
	}
	if c.Router.InitialCredit <= 0 {
		return fmt.Errorf("config: router.initial_credit must be > 0 (got %d)", c.Router.InitialCredit)
	}
	if c.Router.TickIntervalMs <= 0 {
		return fmt.Errorf("config: router.tick_interval_ms must be > 0 (got %d)", c.Router.TickIntervalMs)
	}
	if len(c.Topology.Brokers) == 0 {
		return fmt.Errorf("config: topology.brokers is required")
	}
	if c.Topology.GroupID == "" {
		return fmt.Errorf("config: topology.group_id is required")
	}
	if len(c.Topology.Topics) == 0 {
		return fmt.Errorf("config: topology.topics is required")
	}
	if c.Topology.FetchMaxBytes <= 0 {
		return fmt.Errorf("config: topology.fetch_max_bytes must be > 0 (got %d)", c.Topology.FetchMaxBytes)
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the topology consumer's TLS
// settings. Returns nil if TLS is disabled.
func (t *TopologyConfig) BuildTLSConfig() (*tls.Config, error) {
	if !t.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if t.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(t.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if t.TLS.CertFile != "" && t.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.TLS.CertFile, t.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the topology consumer's
// SASL settings. Returns nil if SASL is disabled.
func (t *TopologyConfig) BuildSASLMechanism() sasl.Mechanism {
	if !t.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(t.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: t.SASL.Username, Pass: t.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
