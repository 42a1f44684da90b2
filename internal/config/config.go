// Package config loads the service configuration from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file, and are validated with struct tags before use.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/program"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/utils"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all app configuration
type Config struct {
	// Solana
	Network     string `validate:"required"`
	RPCEndpoint string `validate:"required,url"`
	ProgramID   string `validate:"required,solana_pubkey"`

	// Presale
	PresaleEndDate time.Time

	// Reconstructor
	PageSize        int           `validate:"gte=1,lte=1000"`
	MaxSignatures   int           `validate:"gte=1"`
	BatchSize       int           `validate:"gte=1,lte=100"`
	BatchDelay      time.Duration `validate:"gte=0"`
	RefreshInterval time.Duration `validate:"gte=1s"`

	// Server
	HTTPAddr                 string   `validate:"required,hostname_port"`
	MaxBuyersPerSubscription int      `validate:"gte=1"`
	GRPCHealthAddr           string   `validate:"omitempty,hostname_port"` // disabled when empty
	WSAllowedOrigins         []string `validate:"dive,required"`           // empty allows every origin

	// Redis, disabled when RedisAddr is empty
	RedisAddr     string `validate:"omitempty,hostname_port"`
	RedisPassword string
	RedisDB       int    `validate:"gte=0"`
	RedisChannel  string `validate:"required_with=RedisAddr"`

	// Kafka, disabled when KafkaBrokers is empty
	KafkaBrokers []string `validate:"dive,hostname_port"`
	KafkaTopic   string   `validate:"required_with=KafkaBrokers"`

	// App settings
	LogLevel zerolog.Level
}

// networks maps cluster names to their public RPC endpoints.
var networks = map[string]string{
	"devnet":       rpc.DevNet_RPC,
	"testnet":      rpc.TestNet_RPC,
	"mainnet-beta": rpc.MainNetBeta_RPC,
	"mainnet":      rpc.MainNetBeta_RPC,
	"localnet":     rpc.LocalNet_RPC,
}

// Load reads configuration from the environment. When envFile is not empty it
// is loaded first; a missing file is not an error. Variables already set in
// the environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var env envParser
	network := getEnv("SOLANA_NETWORK", "devnet")
	cfg := &Config{
		Network:     network,
		RPCEndpoint: getEnv("SOLANA_RPC_URL", resolveNetwork(network)),
		ProgramID:   getEnv("PRESALE_PROGRAM_ID", program.DefaultProgramID),

		PageSize:        env.asInt("HISTORY_PAGE_SIZE", 100),
		MaxSignatures:   env.asInt("HISTORY_MAX_SIGNATURES", 2000),
		BatchSize:       env.asInt("HISTORY_BATCH_SIZE", 50),
		BatchDelay:      env.asDuration("HISTORY_BATCH_DELAY", 500*time.Millisecond),
		RefreshInterval: env.asDuration("HISTORY_REFRESH_INTERVAL", 60*time.Second),

		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		MaxBuyersPerSubscription: env.asInt("MAX_BUYERS_PER_SUBSCRIPTION", 20),
		GRPCHealthAddr:           getEnv("GRPC_HEALTH_ADDR", ""),
		WSAllowedOrigins:         utils.SplitList(getEnv("WS_ALLOWED_ORIGINS", "")),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       env.asInt("REDIS_DB", 0),
		RedisChannel:  getEnv("REDIS_CHANNEL", "s3mt:history"),

		KafkaBrokers: utils.SplitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "s3mt-history"),

		LogLevel: zerolog.InfoLevel,
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if raw := getEnv("PRESALE_END_DATE", ""); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PRESALE_END_DATE %q: %w", raw, err)
		}
		cfg.PresaleEndDate = end
	}

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("solana_pubkey", func(fl validator.FieldLevel) bool {
		return utils.ValidateAddress(fl.Field().String()) == nil
	})
	return v
}

// resolveNetwork returns the RPC endpoint for a cluster name. Anything that is
// not a known cluster is taken to be an endpoint URL.
func resolveNetwork(network string) string {
	if url, ok := networks[strings.ToLower(network)]; ok {
		return url
	}
	return network
}

// Helper functions for parsing environment variables
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

// envParser reads typed variables. Unset or empty variables take the default;
// values that do not parse are collected in errs.
type envParser struct {
	errs []error
}

func (p *envParser) asInt(key string, defaultVal int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s=%q is not an integer", key, raw))
		return defaultVal
	}
	return value
}

func (p *envParser) asDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s=%q is not a duration (e.g. 500ms, 1m)", key, raw))
		return defaultVal
	}
	return value
}
