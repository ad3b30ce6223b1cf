// Package config loads the three-tier configuration shared by armcontrold
// and btserviced: built-in defaults, an optional JSON file overlay, then
// environment overrides. Cobra flags apply last, directly against the
// loaded Config, in each cmd's RunE.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wxzhao/workstation/internal/wire"
)

// DTOConfig controls the envelope fields stamped on outbound messages and
// the topic/schema names. MaxPayload is loaded from file and env, but no
// code path reads it, so inbound payload size is not checked.
type DTOConfig struct {
	DomainID          int    `json:"domain_id"`
	Source            string `json:"source"`
	MaxPayload        int    `json:"max_payload"`
	ArmCommandTopic   string `json:"arm_command_topic"`
	ArmCommandSchema  string `json:"arm_command_schema"`
	ArmStatusTopic    string `json:"arm_status_topic"`
	ArmStatusSchema   string `json:"arm_status_schema"`
	CapabilityTopic   string `json:"capability_topic"`
	FaultStatusTopic  string `json:"fault_status_topic"`
	FaultActionTopic  string `json:"fault_action_topic"`
	HeartbeatTopic    string `json:"heartbeat_topic"`
}

// ArmConfig holds arm_control's SDK connection and ingress settings.
type ArmConfig struct {
	IP            string `json:"ip"`
	Port          int    `json:"port"`
	Pass          string `json:"pass"`
	QueueMax      int    `json:"queue_max"`
	CmdTimeoutMs  int    `json:"cmd_timeout_ms"`
}

// RPCConfig holds the optional gRPC control plane.
type RPCConfig struct {
	Enable bool   `json:"enable"`
	Addr   string `json:"addr"`
}

// BusConfig selects the pub/sub transport backing the DDS-shaped Bus
// interface: "inprocess" for a single-binary/test deployment, "redis" for
// the production standin for the external DDS transport.
type BusConfig struct {
	Backend   string `json:"backend"`
	RedisAddr string `json:"redis_addr"`
}

// BTConfig holds bt_service's tick/reload cadence and visualization.
type BTConfig struct {
	TickMs    int    `json:"tick_ms"`
	ReloadMs  int    `json:"reload_ms"`
	TreeFile  string `json:"tree_file"`
	GrootHost string `json:"groot_host"`
	GrootPort int    `json:"groot_port"`
}

// FaultRecoveryConfig holds the fault recovery executor's rule source and
// restart behavior.
type FaultRecoveryConfig struct {
	RulesFile string `json:"rules_file"`
	ExitCode  int    `json:"exit_code"`
	MarkerDir string `json:"marker_dir"`
}

// FaultAuditConfig holds the optional Postgres fault-history sink. Disabled
// by default: arm_control and bt_service function fully without it.
type FaultAuditConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

// MetricsConfig holds Prometheus collector settings. There is no HTTP
// exposition server: collectors are registered in-process for a caller to
// scrape via its own mux, or left unregistered if disabled.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// LoggingConfig holds structured logging settings shared by both daemons.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the central configuration struct embedding all component
// configs. Both armcontrold and btserviced load the same Config shape and
// read only the sections relevant to them.
type Config struct {
	DTO           DTOConfig           `json:"dto"`
	Arm           ArmConfig           `json:"arm"`
	RPC           RPCConfig           `json:"rpc"`
	Bus           BusConfig           `json:"bus"`
	BT            BTConfig            `json:"bt"`
	FaultRecovery FaultRecoveryConfig `json:"fault_recovery"`
	FaultAudit    FaultAuditConfig    `json:"fault_audit"`
	Metrics       MetricsConfig       `json:"metrics"`
	Logging       LoggingConfig       `json:"logging"`
}

// DefaultConfig returns a Config with sensible defaults, matching spec.md's
// documented env-var defaults.
func DefaultConfig() *Config {
	return &Config{
		DTO: DTOConfig{
			DomainID:         0,
			Source:           "workstation",
			MaxPayload:       8192,
			ArmCommandTopic:  wire.TopicArmCommand,
			ArmCommandSchema: wire.SchemaArmCommand,
			ArmStatusTopic:   wire.TopicArmStatus,
			ArmStatusSchema:  wire.SchemaArmStatus,
			CapabilityTopic:  wire.TopicCapability,
			FaultStatusTopic: wire.TopicFaultStatus,
			FaultActionTopic: wire.TopicFaultAction,
			HeartbeatTopic:   wire.TopicHeartbeat,
		},
		Arm: ArmConfig{
			IP:           "192.168.1.10",
			Port:         8080,
			Pass:         "",
			QueueMax:     64,
			CmdTimeoutMs: 30000,
		},
		RPC: RPCConfig{
			Enable: false,
			Addr:   ":17891",
		},
		Bus: BusConfig{
			Backend:   "inprocess",
			RedisAddr: "localhost:6379",
		},
		BT: BTConfig{
			TickMs:    20,
			ReloadMs:  500,
			TreeFile:  "tree.xml",
			GrootHost: "",
			GrootPort: 1667,
		},
		FaultRecovery: FaultRecoveryConfig{
			RulesFile: "",
			ExitCode:  77,
			MarkerDir: "/tmp/workstation",
		},
		FaultAudit: FaultAuditConfig{
			Enabled: false,
			DSN:     "",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "workstation",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a JSON file, starting from
// DefaultConfig so an overlay need only set the fields it overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies WXZ_* environment variable overrides to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("WXZ_ARM_IP"); v != "" {
		cfg.Arm.IP = v
	}
	if v := os.Getenv("WXZ_ARM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Arm.Port = n
		}
	}
	if v := os.Getenv("WXZ_ARM_PASS"); v != "" {
		cfg.Arm.Pass = v
	}
	if v := os.Getenv("WXZ_DOMAIN_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DTO.DomainID = n
		}
	}
	if v := os.Getenv("WXZ_DTO_SOURCE"); v != "" {
		cfg.DTO.Source = v
	}
	if v := os.Getenv("WXZ_DTO_MAX_PAYLOAD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DTO.MaxPayload = n
		}
	}
	if v := os.Getenv("WXZ_P1_ARM_COMMAND_TOPIC"); v != "" {
		cfg.DTO.ArmCommandTopic = v
	}
	if v := os.Getenv("WXZ_P1_ARM_COMMAND_DTO_SCHEMA"); v != "" {
		cfg.DTO.ArmCommandSchema = v
	}
	if v := os.Getenv("WXZ_P1_ARM_STATUS_TOPIC"); v != "" {
		cfg.DTO.ArmStatusTopic = v
	}
	if v := os.Getenv("WXZ_P1_ARM_STATUS_DTO_SCHEMA"); v != "" {
		cfg.DTO.ArmStatusSchema = v
	}
	if v := os.Getenv("WXZ_CAPABILITY_TOPIC"); v != "" {
		cfg.DTO.CapabilityTopic = v
	}
	if v := os.Getenv("WXZ_FAULT_STATUS_TOPIC"); v != "" {
		cfg.DTO.FaultStatusTopic = v
	}
	if v := os.Getenv("WXZ_FAULT_ACTION_TOPIC"); v != "" {
		cfg.DTO.FaultActionTopic = v
	}
	if v := os.Getenv("WXZ_HEARTBEAT_TOPIC"); v != "" {
		cfg.DTO.HeartbeatTopic = v
	}

	if v := os.Getenv("WXZ_ARM_QUEUE_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Arm.QueueMax = n
		}
	}
	if v := os.Getenv("WXZ_ARM_CMD_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Arm.CmdTimeoutMs = n
		}
	}
	if v := os.Getenv("WXZ_ARM_RPC_ENABLE"); v != "" {
		cfg.RPC.Enable = parseBool(v)
	}
	if v := os.Getenv("WXZ_ARM_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}

	if v := os.Getenv("WXZ_BUS_BACKEND"); v != "" {
		cfg.Bus.Backend = v
	}
	if v := os.Getenv("WXZ_BUS_REDIS_ADDR"); v != "" {
		cfg.Bus.RedisAddr = v
	}

	if v := os.Getenv("WXZ_BT_TICK_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BT.TickMs = n
		}
	}
	if v := os.Getenv("WXZ_BT_RELOAD_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BT.ReloadMs = n
		}
	}
	if v := os.Getenv("WXZ_BT_TREE_FILE"); v != "" {
		cfg.BT.TreeFile = v
	}
	if v := os.Getenv("WXZ_BT_GROOT_HOST"); v != "" {
		cfg.BT.GrootHost = v
	}
	if v := os.Getenv("WXZ_BT_GROOT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BT.GrootPort = n
		}
	}

	if v := os.Getenv("WXZ_FAULT_RECOVERY_RULES_FILE"); v != "" {
		cfg.FaultRecovery.RulesFile = v
	}
	if v := os.Getenv("WXZ_FAULT_RECOVERY_EXIT_CODE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FaultRecovery.ExitCode = n
		}
	}
	if v := os.Getenv("WXZ_FAULT_RECOVERY_MARKER_DIR"); v != "" {
		cfg.FaultRecovery.MarkerDir = v
	}

	if v := os.Getenv("WXZ_FAULT_AUDIT_ENABLED"); v != "" {
		cfg.FaultAudit.Enabled = parseBool(v)
	}
	if v := os.Getenv("WXZ_FAULT_AUDIT_DSN"); v != "" {
		cfg.FaultAudit.DSN = v
	}

	if v := os.Getenv("WXZ_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("WXZ_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}

	if v := os.Getenv("WXZ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WXZ_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// CmdTimeout returns the arm command timeout as a time.Duration.
func (c *ArmConfig) CmdTimeout() time.Duration {
	return time.Duration(c.CmdTimeoutMs) * time.Millisecond
}

// TickInterval returns the BT tick period as a time.Duration.
func (c *BTConfig) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// ReloadInterval returns the BT reload-check throttle as a time.Duration.
func (c *BTConfig) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadMs) * time.Millisecond
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
