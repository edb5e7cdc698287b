package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// RPC 链 RPC 连接配置
type RPC struct {
	EndpointURLs      []string      `mapstructure:"endpoint_urls"`
	RetryCount        int           `mapstructure:"retry_count"`
	BaseWait          time.Duration `mapstructure:"base_wait"`
	BackoffMultiplier int           `mapstructure:"backoff_multiplier"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	BlockHeightMargin uint64        `mapstructure:"block_height_margin"`
	AccountIndexURL   string        `mapstructure:"account_index_url"`
}

// Legacy 旧 MPC 服务配置
type Legacy struct {
	BaseURL           string        `mapstructure:"base_url"`
	OperatorSecretKey string        `mapstructure:"operator_secret_key"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// Derive 密钥派生合约配置
type Derive struct {
	ContractID   string `mapstructure:"contract_id"`
	IssuerDomain string `mapstructure:"issuer_domain"`
	DomainID     uint32 `mapstructure:"domain_id"`
}

// Queue 持久化任务队列配置
type Queue struct {
	DatabaseURL       string        `mapstructure:"database_url"`
	WorkerCount       int           `mapstructure:"worker_count"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
}

// Token 运营方签发的身份令牌配置
type Token struct {
	SecretKey string        `mapstructure:"secret_key"`
	Audience  string        `mapstructure:"audience"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Relayer 中继服务配置
type Relayer struct {
	Signers       []string      `mapstructure:"signers"`
	BlockHashTTL  time.Duration `mapstructure:"block_hash_ttl"`
	ListenAddress string        `mapstructure:"listen_address"`
}

// Logger 日志配置
type Logger struct {
	Level              string `mapstructure:"level"`
	PrettyPrintConsole bool   `mapstructure:"pretty_print_console"`
}

// Service 服务全局配置
type Service struct {
	RPC     RPC     `mapstructure:"rpc"`
	Legacy  Legacy  `mapstructure:"legacy"`
	Derive  Derive  `mapstructure:"derive"`
	Queue   Queue   `mapstructure:"queue"`
	Token   Token   `mapstructure:"token"`
	Relayer Relayer `mapstructure:"relayer"`
	Logger  Logger  `mapstructure:"logger"`
}

// DefaultServiceConfigFromEnv loads the service configuration.
// Every key can be set through the environment (prefix FASTAUTH_, dots
// replaced by underscores, e.g. FASTAUTH_RPC_ENDPOINT_URLS) and optionally
// through a YAML file pointed at by FASTAUTH_CONFIG_FILE. Environment
// variables take precedence over the file.
func DefaultServiceConfigFromEnv() (Service, error) {
	v := viper.New()
	v.SetEnvPrefix("FASTAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc.endpoint_urls", []string{})
	v.SetDefault("rpc.retry_count", 10)
	v.SetDefault("rpc.base_wait", 500*time.Millisecond)
	v.SetDefault("rpc.backoff_multiplier", 1)
	v.SetDefault("rpc.request_timeout", 30*time.Second)
	v.SetDefault("rpc.block_height_margin", 100)
	v.SetDefault("rpc.account_index_url", "")
	v.SetDefault("legacy.base_url", "")
	v.SetDefault("legacy.operator_secret_key", "")
	v.SetDefault("legacy.request_timeout", 30*time.Second)
	v.SetDefault("derive.contract_id", "")
	v.SetDefault("derive.issuer_domain", "")
	v.SetDefault("derive.domain_id", 1)
	v.SetDefault("queue.database_url", "")
	v.SetDefault("queue.worker_count", 4)
	v.SetDefault("queue.poll_interval", time.Second)
	v.SetDefault("queue.visibility_timeout", 5*time.Minute)
	v.SetDefault("queue.max_attempts", 10)
	v.SetDefault("token.secret_key", "")
	v.SetDefault("token.audience", "")
	v.SetDefault("token.ttl", 10*time.Minute)
	v.SetDefault("relayer.signers", []string{})
	v.SetDefault("relayer.block_hash_ttl", 10*time.Second)
	v.SetDefault("relayer.listen_address", ":8080")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.pretty_print_console", false)

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Service{}, errors.Wrapf(err, "failed to read config file %q", file)
		}
	}

	var cfg Service
	if err := v.Unmarshal(&cfg); err != nil {
		return Service{}, errors.Wrap(err, "failed to unmarshal service config")
	}

	return cfg, nil
}

// Validate checks the parts of the configuration every command depends on.
// A failure here is fatal at startup.
func (c Service) Validate() error {
	if err := ValidateEndpointURLs(c.RPC.EndpointURLs); err != nil {
		return err
	}

	if c.RPC.RetryCount < 0 {
		return errors.New("rpc.retry_count must not be negative")
	}

	if c.RPC.BaseWait <= 0 {
		return errors.New("rpc.base_wait must be positive")
	}

	return nil
}

// ValidateEndpointURLs requires a non-empty list of syntactically valid
// http(s) URLs.
func ValidateEndpointURLs(urls []string) error {
	if len(urls) == 0 {
		return errors.New("at least one RPC endpoint URL is required")
	}

	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.Wrapf(err, "invalid RPC endpoint URL %q", raw)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Errorf("RPC endpoint URL %q must use http or https", raw)
		}

		if u.Host == "" {
			return errors.Errorf("RPC endpoint URL %q has no host", raw)
		}
	}

	return nil
}
