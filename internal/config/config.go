// Package config loads settings for the server and the client from, in
// increasing priority: defaults, an optional YAML file, a .env file and the
// process environment. Environment names follow the deployment convention
// (PORT, MONAD_RPC, IPFS_API_URL, ...).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvConfigFile = "NFTMSG_CONFIG"

type (
	Config struct {
		Server      ServerConfig      `mapstructure:"server"`
		Chain       ChainConfig       `mapstructure:"chain"`
		Store       StoreConfig       `mapstructure:"store"`
		Blob        BlobConfig        `mapstructure:"blob"`
		Auth        AuthConfig        `mapstructure:"auth"`
		Marketplace MarketplaceConfig `mapstructure:"marketplace"`
		Log         LogConfig         `mapstructure:"log"`
		Client      ClientConfig      `mapstructure:"client"`
	}

	ServerConfig struct {
		Port        int           `mapstructure:"port"`
		HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	}

	ChainConfig struct {
		RPC             string `mapstructure:"rpc"`
		ContractAddress string `mapstructure:"contract_address"`
	}

	StoreConfig struct {
		Backend       string `mapstructure:"backend"`
		DataDir       string `mapstructure:"data_dir"`
		SQLitePath    string `mapstructure:"sqlite_path"`
		MongoURI      string `mapstructure:"mongo_uri"`
		MongoDB       string `mapstructure:"mongo_db"`
		RedisAddr     string `mapstructure:"redis_addr"`
		RedisPassword string `mapstructure:"redis_password"`
		RedisDB       int    `mapstructure:"redis_db"`
	}

	BlobConfig struct {
		Backend    string   `mapstructure:"backend"`
		IPFSAPIURL string   `mapstructure:"ipfs_api_url"`
		Gateways   []string `mapstructure:"gateways"`
		LocalDir   string   `mapstructure:"local_dir"`
		S3Bucket   string   `mapstructure:"s3_bucket"`
		S3Region   string   `mapstructure:"s3_region"`
	}

	AuthConfig struct {
		RequireSignatures bool          `mapstructure:"require_signatures"`
		NonceTTL          time.Duration `mapstructure:"nonce_ttl"`
	}

	MarketplaceConfig struct {
		URL      string `mapstructure:"url"`
		APIToken string `mapstructure:"api_token"`
	}

	LogConfig struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	}

	ClientConfig struct {
		BackendURL   string        `mapstructure:"backend_url"`
		KeyFile      string        `mapstructure:"key_file"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
	}
)

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"server.port":             "PORT",
	"server.http_timeout":     "HTTP_TIMEOUT",
	"chain.rpc":               "MONAD_RPC",
	"chain.contract_address":  "CONTRACT_ADDRESS",
	"store.backend":           "STORE_BACKEND",
	"store.data_dir":          "DATA_DIR",
	"store.sqlite_path":       "SQLITE_PATH",
	"store.mongo_uri":         "MONGO_URI",
	"store.mongo_db":          "MONGO_DB",
	"store.redis_addr":        "REDIS_ADDR",
	"store.redis_password":    "REDIS_PASSWORD",
	"store.redis_db":          "REDIS_DB",
	"blob.backend":            "BLOB_BACKEND",
	"blob.ipfs_api_url":       "IPFS_API_URL",
	"blob.gateways":           "IPFS_GATEWAYS",
	"blob.local_dir":          "BLOB_DIR",
	"blob.s3_bucket":          "AWS_BUCKET",
	"blob.s3_region":          "AWS_REGION",
	"auth.require_signatures": "AUTH_REQUIRE_SIGNATURES",
	"auth.nonce_ttl":          "AUTH_NONCE_TTL",
	"marketplace.url":         "MARKETPLACE_URL",
	"marketplace.api_token":   "ME_API_TOKEN",
	"log.level":               "LOG_LEVEL",
	"log.development":         "LOG_DEVELOPMENT",
	"client.backend_url":      "NFTMSG_BACKEND_URL",
	"client.key_file":         "NFTMSG_KEY_FILE",
	"client.poll_interval":    "NFTMSG_POLL_INTERVAL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.http_timeout", "30s")

	v.SetDefault("chain.rpc", "https://testnet-rpc.monad.xyz")
	v.SetDefault("chain.contract_address", "")

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("store.sqlite_path", "data/nftmsg.db")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_db", "nft_messenger")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)

	v.SetDefault("blob.backend", "ipfs")
	v.SetDefault("blob.ipfs_api_url", "http://localhost:5001")
	v.SetDefault("blob.gateways", []string{"https://ipfs.io"})
	v.SetDefault("blob.local_dir", "data/blobs")
	v.SetDefault("blob.s3_bucket", "")
	v.SetDefault("blob.s3_region", "")

	v.SetDefault("auth.require_signatures", true)
	v.SetDefault("auth.nonce_ttl", "5m")

	v.SetDefault("marketplace.url", "https://api-mainnet.magiceden.dev/v3/rtp/monad-testnet")
	v.SetDefault("marketplace.api_token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("client.backend_url", "http://localhost:4000")
	v.SetDefault("client.key_file", "")
	v.SetDefault("client.poll_interval", "5s")
}

// Load reads configuration. configFile may be empty; NFTMSG_CONFIG is used
// then, and a missing file is not an error unless it was named explicitly.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if configFile == "" {
		configFile = os.Getenv(EnvConfigFile)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Blob.Gateways = splitList(cfg.Blob.Gateways)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}

	switch c.Store.Backend {
	case "file", "sqlite", "mongo", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Blob.Backend {
	case "ipfs":
		if c.Blob.IPFSAPIURL == "" {
			return errors.New("ipfs blob backend requires IPFS_API_URL")
		}
	case "s3":
		if c.Blob.S3Bucket == "" {
			return errors.New("s3 blob backend requires AWS_BUCKET")
		}
	case "local":
	default:
		return fmt.Errorf("unknown blob backend %q", c.Blob.Backend)
	}
	return nil
}

// ContractAddress returns nil when no contract is configured.
func (c *Config) ContractAddress() *string {
	if c.Chain.ContractAddress == "" {
		return nil
	}
	addr := c.Chain.ContractAddress
	return &addr
}
