package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr       string `mapstructure:"addr"`
		CORSOrigin string `mapstructure:"cors_origin"`
	} `mapstructure:"server"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Database struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
		URL    string `mapstructure:"url"`
	} `mapstructure:"database"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
		AdminKey  string        `mapstructure:"admin_key"`
	} `mapstructure:"auth"`
	Inventory struct {
		BaseURL      string        `mapstructure:"base_url"`
		ClientKey    string        `mapstructure:"client_key"`
		StockPath    string        `mapstructure:"stock_path"`
		AllocatePath string        `mapstructure:"allocate_path"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"inventory"`
	Prices     map[string]string `mapstructure:"prices"`
	PricesFile string            `mapstructure:"prices_file"`
	Deposit    struct {
		MinAmount              string            `mapstructure:"min_amount"`
		MethodMinimums         map[string]string `mapstructure:"method_minimums"`
		ReferenceExemptMethods []string          `mapstructure:"reference_exempt_methods"`
	} `mapstructure:"deposit"`
	Payment struct {
		BaseURL    string `mapstructure:"base_url"`
		APIKey     string `mapstructure:"api_key"`
		AppBaseURL string `mapstructure:"app_base_url"`
	} `mapstructure:"payment"`
	Storage struct {
		Bucket    string `mapstructure:"bucket"`
		KeyPrefix string `mapstructure:"key_prefix"`
		Region    string `mapstructure:"region"`
		Endpoint  string `mapstructure:"endpoint"`
	} `mapstructure:"storage"`
	AWS struct {
		Profile string `mapstructure:"profile"`
	} `mapstructure:"aws"`
	RabbitMQ struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"rabbitmq"`
	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`
	RateLimit struct {
		PurchasePerMinute int `mapstructure:"purchase_per_minute"`
	} `mapstructure:"ratelimit"`
	Jobs struct {
		ExpirySchedule string        `mapstructure:"expiry_schedule"`
		CheckoutTTL    time.Duration `mapstructure:"checkout_ttl"`
	} `mapstructure:"jobs"`
}

// Load reads configuration from environment variables and optional config files
// found in dir.
func Load(dir string) (Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env")) // optional; never overrides the real environment

	v := viper.New()
	v.SetEnvPrefix("MAILMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/mail-market.db")
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.admin_key", "")
	v.SetDefault("inventory.base_url", "https://gapi.hotmail007.com")
	v.SetDefault("inventory.client_key", "")
	v.SetDefault("inventory.stock_path", "/api/mail/getStock")
	v.SetDefault("inventory.allocate_path", "/api/mail/getMail")
	v.SetDefault("inventory.timeout", "30s")
	v.SetDefault("prices_file", "")
	v.SetDefault("deposit.min_amount", "10")
	v.SetDefault("deposit.reference_exempt_methods", []string{"auto"})
	v.SetDefault("payment.base_url", "https://payment.rupantorpay.com")
	v.SetDefault("payment.api_key", "")
	v.SetDefault("payment.app_base_url", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.key_prefix", "mail-market")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("ratelimit.purchase_per_minute", 20)
	v.SetDefault("jobs.expiry_schedule", "@every 15m")
	v.SetDefault("jobs.checkout_ttl", "24h")

	v.SetConfigName("config")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.PricesFile != "" {
		prices, err := loadPricesFile(cfg.PricesFile)
		if err != nil {
			return Config{}, err
		}
		if cfg.Prices == nil {
			cfg.Prices = map[string]string{}
		}
		for itemType, price := range prices {
			if _, set := cfg.Prices[itemType]; !set {
				cfg.Prices[itemType] = price
			}
		}
	}

	return cfg, nil
}

// loadPricesFile reads a flat JSON/YAML object of item type to unit price.
func loadPricesFile(path string) (map[string]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read prices file %s: %w", path, err)
	}
	prices := make(map[string]string)
	for _, key := range v.AllKeys() {
		prices[key] = v.GetString(key)
	}
	return prices, nil
}

// Validate reports configuration the server cannot start without.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		missing = append(missing, "auth.jwt_secret")
	}
	if strings.TrimSpace(c.Auth.AdminKey) == "" {
		missing = append(missing, "auth.admin_key")
	}
	if strings.TrimSpace(c.Inventory.ClientKey) == "" {
		missing = append(missing, "inventory.client_key")
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			missing = append(missing, "database.url")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if _, err := c.PriceList(); err != nil {
		return err
	}
	if _, _, err := c.DepositMinimums(); err != nil {
		return err
	}
	return nil
}

// PriceList parses the configured unit prices. Keys are lower-cased item types.
func (c Config) PriceList() (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(c.Prices))
	for itemType, raw := range c.Prices {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("price for %q: %w", itemType, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price for %q must be positive", itemType)
		}
		prices[strings.ToLower(strings.TrimSpace(itemType))] = price
	}
	return prices, nil
}

// DepositMinimums parses the global and per-method minimum deposit amounts.
func (c Config) DepositMinimums() (decimal.Decimal, map[string]decimal.Decimal, error) {
	global, err := decimal.NewFromString(strings.TrimSpace(c.Deposit.MinAmount))
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("deposit.min_amount: %w", err)
	}
	perMethod := make(map[string]decimal.Decimal, len(c.Deposit.MethodMinimums))
	for method, raw := range c.Deposit.MethodMinimums {
		min, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("deposit.method_minimums.%s: %w", method, err)
		}
		perMethod[strings.ToLower(method)] = min
	}
	return global, perMethod, nil
}
