package models

// MConfig Structure
type MConfig struct {
	Name     string         `yaml:"name"`
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	GrpcHost string         `yaml:"grpc_host"`
	GrpcPort int            `yaml:"grpc_port"`
	Storage  MStorageConfig `yaml:"storage"`
	Network  MNetworkConfig `yaml:"network"`
	Stream   MStreamConfig  `yaml:"stream"`
	Watches  []MWatchConfig `yaml:"watches"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MNetworkConfig struct {
	Enabled              bool     `yaml:"enabled"`
	Proxies              []string `yaml:"proxies"`
	RequestTimeout       int      `yaml:"timeout"`
	MaxRetries           int      `yaml:"retries"`
	UserAgent            string   `yaml:"user_agent"`
	DiscoveryScheme      string   `yaml:"discovery_scheme"` // "https" unless testing against a local stub
	ProbeAddress         string   `yaml:"probe_address"`
	ProbeIntervalSeconds int      `yaml:"probe_interval_seconds"`
}

type MStreamConfig struct {
	ReconnectDelayMs        int    `yaml:"reconnect_delay_ms"`
	Backoff                 string `yaml:"backoff"` // "fixed" or "exponential"
	MaxReconnectDelayMs     int    `yaml:"max_reconnect_delay_ms"`
	ErrorLogIntervalSeconds int    `yaml:"error_log_interval_seconds"`
	EventBuffer             int    `yaml:"event_buffer"`
}

// MWatchConfig is one set of accounts watched against one coordinator.
// ServiceURL, when set, skips discovery for Domain.
type MWatchConfig struct {
	Name       string   `yaml:"name" json:"name"`
	Domain     string   `yaml:"domain" json:"domain"`
	ServiceURL string   `yaml:"service_url,omitempty" json:"service_url,omitempty"`
	Accounts   []string `yaml:"accounts" json:"accounts"`
}
