// Package config loads run configuration from a YAML file overlaid with
// environment variables, the same koanf-based pattern the rest of this
// code's ancestry uses.
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

	"github.com/route-beacon/bgpextrapolate/internal/policy"
)

type Config struct {
	Service       ServiceConfig       `koanf:"service"`
	Topology      TopologyConfig      `koanf:"topology"`
	Announcements AnnouncementsConfig `koanf:"announcements"`
	Seeding       SeedingConfig       `koanf:"seeding"`
	Propagation   PropagationConfig   `koanf:"propagation"`
	RIB           RIBConfig           `koanf:"rib"`
	Postgres      PostgresConfig      `koanf:"postgres"`
	Snapshot      SnapshotConfig      `koanf:"snapshot"`
	Kafka         KafkaConfig         `koanf:"kafka"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

// TopologyConfig points at the AS-relationship input and controls how
// the Topology Store is built from it (spec section 4.2).
type TopologyConfig struct {
	Path         string `koanf:"path"`
	ElideStubs   bool   `koanf:"elide_stubs"`
	RefuseCycles bool   `koanf:"refuse_cycles"`
}

// AnnouncementsConfig points at the observed-paths input fed to the
// seeder (spec section 4.4).
type AnnouncementsConfig struct {
	Path       string `koanf:"path"`
	BlockCount int    `koanf:"block_count"`
}

// SeedingConfig mirrors seed.Config (spec section 4.4/6).
type SeedingConfig struct {
	OriginOnly          bool   `koanf:"origin_only"`
	TimestampComparison string `koanf:"timestamp_comparison"`
	Tiebreak            string `koanf:"tiebreak"`
	RNGSeed             int64  `koanf:"rng_seed"`
}

// PropagationConfig mirrors propagate.Config (spec section 4.5/6):
// "same tie-break options as seeding."
type PropagationConfig struct {
	TimestampComparison string `koanf:"timestamp_comparison"`
	Tiebreak            string `koanf:"tiebreak"`
	RNGSeed             int64  `koanf:"rng_seed"`
}

// RIBConfig selects the RIB matrix memory layout (spec section 4.3).
type RIBConfig struct {
	// Layout is "row_major" or "transposed".
	Layout string `koanf:"layout"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// SnapshotConfig controls the zstd-compressed RIB snapshot codec.
type SnapshotConfig struct {
	OutputPath       string `koanf:"output_path"`
	CompressionLevel int    `koanf:"compression_level"`
}

// KafkaConfig is only consulted when announcements are streamed rather
// than read from a flat file (internal/ingest).
type KafkaConfig struct {
	Brokers       []string       `koanf:"brokers"`
	ClientID      string         `koanf:"client_id"`
	TLS           TLSConfig      `koanf:"tls"`
	SASL          SASLConfig     `koanf:"sasl"`
	Announcements ConsumerConfig `koanf:"announcements"`
	FetchMaxBytes int32          `koanf:"fetch_max_bytes"`
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

type ConsumerConfig struct {
	GroupID string   `koanf:"group_id"`
	Topics  []string `koanf:"topics"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: BGPEXTRAPOLATE_TOPOLOGY__PATH ->
	// topology.path
	if err := k.Load(env.Provider("BGPEXTRAPOLATE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPEXTRAPOLATE_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "bgpextrapolate-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Topology: TopologyConfig{
			ElideStubs: true,
		},
		Announcements: AnnouncementsConfig{
			BlockCount: 1,
		},
		Seeding: SeedingConfig{
			TimestampComparison: "disabled",
			Tiebreak:            "lowest_asn",
		},
		Propagation: PropagationConfig{
			TimestampComparison: "disabled",
			Tiebreak:            "lowest_asn",
		},
		RIB: RIBConfig{
			Layout: "row_major",
		},
		Postgres: PostgresConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		Snapshot: SnapshotConfig{
			CompressionLevel: 3,
		},
		Kafka: KafkaConfig{
			ClientID:      "bgpextrapolate",
			FetchMaxBytes: 52428800,
			Announcements: ConsumerConfig{
				GroupID: "bgpextrapolate-announcements",
			},
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if len(cfg.Kafka.Announcements.Topics) == 1 && strings.Contains(cfg.Kafka.Announcements.Topics[0], ",") {
		cfg.Kafka.Announcements.Topics = strings.Split(cfg.Kafka.Announcements.Topics[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Topology.Path == "" {
		return fmt.Errorf("config: topology.path is required")
	}
	if c.Announcements.Path == "" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: either announcements.path or kafka.brokers must be set")
	}
	if c.Announcements.BlockCount <= 0 {
		return fmt.Errorf("config: announcements.block_count must be > 0 (got %d)", c.Announcements.BlockCount)
	}
	if _, err := parseTimestampComparison(c.Seeding.TimestampComparison); err != nil {
		return fmt.Errorf("config: seeding.timestamp_comparison: %w", err)
	}
	if _, err := parseTiebreak(c.Seeding.Tiebreak); err != nil {
		return fmt.Errorf("config: seeding.tiebreak: %w", err)
	}
	if _, err := parseTimestampComparison(c.Propagation.TimestampComparison); err != nil {
		return fmt.Errorf("config: propagation.timestamp_comparison: %w", err)
	}
	if _, err := parseTiebreak(c.Propagation.Tiebreak); err != nil {
		return fmt.Errorf("config: propagation.tiebreak: %w", err)
	}
	switch c.RIB.Layout {
	case "row_major", "transposed":
	default:
		return fmt.Errorf("config: rib.layout must be row_major or transposed (got %q)", c.RIB.Layout)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if len(c.Kafka.Brokers) > 0 {
		if c.Kafka.Announcements.GroupID == "" {
			return fmt.Errorf("config: kafka.announcements.group_id is required when kafka.brokers is set")
		}
		if len(c.Kafka.Announcements.Topics) == 0 {
			return fmt.Errorf("config: kafka.announcements.topics is required when kafka.brokers is set")
		}
		if c.Kafka.FetchMaxBytes <= 0 {
			return fmt.Errorf("config: kafka.fetch_max_bytes must be > 0 (got %d)", c.Kafka.FetchMaxBytes)
		}
	}
	if c.Postgres.DSN != "" {
		if c.Postgres.MaxConns <= 0 {
			return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
		}
		if c.Postgres.MinConns < 0 {
			return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
		}
	}
	return nil
}

func parseTimestampComparison(s string) (policy.TimestampComparison, error) {
	switch s {
	case "", "disabled":
		return policy.TimestampDisabled, nil
	case "prefer_newer":
		return policy.TimestampPreferNewer, nil
	case "prefer_older":
		return policy.TimestampPreferOlder, nil
	default:
		return 0, fmt.Errorf("must be one of disabled, prefer_newer, prefer_older (got %q)", s)
	}
}

func parseTiebreak(s string) (policy.TiebreakMethod, error) {
	switch s {
	case "", "random":
		return policy.TiebreakRandom, nil
	case "lowest_asn":
		return policy.TiebreakLowestASN, nil
	default:
		return 0, fmt.Errorf("must be one of random, lowest_asn (got %q)", s)
	}
}

// SeedingPolicy resolves the seeder's policy enums. Validate must have
// already succeeded, so the parse errors here are unreachable.
func (c *Config) SeedingPolicy() (policy.TimestampComparison, policy.TiebreakMethod) {
	ts, _ := parseTimestampComparison(c.Seeding.TimestampComparison)
	tb, _ := parseTiebreak(c.Seeding.Tiebreak)
	return ts, tb
}

// PropagationPolicy resolves the propagator's policy enums.
func (c *Config) PropagationPolicy() (policy.TimestampComparison, policy.TiebreakMethod) {
	ts, _ := parseTimestampComparison(c.Propagation.TimestampComparison)
	tb, _ := parseTiebreak(c.Propagation.Tiebreak)
	return ts, tb
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings.
// Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL
// settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}

