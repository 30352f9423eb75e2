// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TradeConfig holds the per-session trading policy.
type TradeConfig struct {
	Quota                int           `mapstructure:"quota"`
	SizingFraction       float64       `mapstructure:"sizing_fraction"`
	MinTradeSol          float64       `mapstructure:"min_trade_sol"`
	TakeProfitPct        float64       `mapstructure:"take_profit_pct"`
	StopLossPct          float64       `mapstructure:"stop_loss_pct"`
	MaxHold              time.Duration `mapstructure:"max_hold"`
	AssumeFilledOnError  bool          `mapstructure:"assume_filled_on_execute_error"`
	ShortRecheckInterval time.Duration `mapstructure:"short_recheck_interval"`
	LongRecheckInterval  time.Duration `mapstructure:"long_recheck_interval"`
	ErrorBackoff         time.Duration `mapstructure:"error_backoff"`
}

// ExitConfig holds the exit-retry and monitoring policy.
type ExitConfig struct {
	LadderBps     []int         `mapstructure:"ladder_bps"`
	RungDelay     time.Duration `mapstructure:"rung_delay"`
	FloorBps      int           `mapstructure:"floor_bps"`
	MonitorPeriod time.Duration `mapstructure:"monitor_period"`
}

type Config struct {
	RPCList      []string          `mapstructure:"rpc_list"`
	PriceAPIURL  string            `mapstructure:"price_api_url"`
	SignalAPIURL string            `mapstructure:"signal_api_url"`
	OrderAPIURL  string            `mapstructure:"order_api_url"`
	ListenAddr   string            `mapstructure:"listen_addr"`
	WalletKey    string            `mapstructure:"wallet_key"`
	Tokens       map[string]string `mapstructure:"tokens"` // symbol -> mint
	DebugLogging bool              `mapstructure:"debug_logging"`
	LogFile      string            `mapstructure:"log_file"`
	Trade        TradeConfig       `mapstructure:"trade"`
	Exit         ExitConfig        `mapstructure:"exit"`
}

const (
	DefaultQuota          = 5
	DefaultSizingFraction = 0.9
	DefaultMinTradeSol    = 0.05
	DefaultTakeProfitPct  = 3.0
	DefaultStopLossPct    = 5.0
	DefaultFloorBps       = 300
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"listen_addr":                          ":8080",
		"log_file":                             "logs/solpilot.log",
		"trade.quota":                          DefaultQuota,
		"trade.sizing_fraction":                DefaultSizingFraction,
		"trade.min_trade_sol":                  DefaultMinTradeSol,
		"trade.take_profit_pct":                DefaultTakeProfitPct,
		"trade.stop_loss_pct":                  DefaultStopLossPct,
		"trade.max_hold":                       "3m",
		"trade.assume_filled_on_execute_error": true,
		"trade.short_recheck_interval":         "10s",
		"trade.long_recheck_interval":          "30s",
		"trade.error_backoff":                  "15s",
		"exit.ladder_bps":                      []int{300, 500, 700, 1000, 1500, 2000},
		"exit.rung_delay":                      "3s",
		"exit.floor_bps":                       DefaultFloorBps,
		"exit.monitor_period":                  "5s",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, ValidateConfig(&cfg)
}

func ValidateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	for name, raw := range map[string]string{
		"price_api_url":  cfg.PriceAPIURL,
		"signal_api_url": cfg.SignalAPIURL,
		"order_api_url":  cfg.OrderAPIURL,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		if err := validateURL(raw, "http"); err != nil {
			return fmt.Errorf("invalid %s", name)
		}
	}
	if len(cfg.Tokens) == 0 {
		return errors.New("tokens map is empty")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Trade.Quota <= 0 {
		return errors.New("invalid trade quota")
	}
	if cfg.Trade.SizingFraction <= 0 || cfg.Trade.SizingFraction >= 1 {
		return errors.New("trade sizing_fraction must be in (0, 1)")
	}
	if cfg.Trade.MinTradeSol <= 0 {
		return errors.New("invalid trade min_trade_sol")
	}
	if cfg.Trade.TakeProfitPct <= 0 || cfg.Trade.StopLossPct <= 0 {
		return errors.New("take_profit_pct and stop_loss_pct must be positive")
	}
	if cfg.Trade.MaxHold <= 0 {
		return errors.New("invalid trade max_hold")
	}
	if len(cfg.Exit.LadderBps) == 0 {
		return errors.New("exit ladder_bps is empty")
	}
	for i := 1; i < len(cfg.Exit.LadderBps); i++ {
		if cfg.Exit.LadderBps[i] <= cfg.Exit.LadderBps[i-1] {
			return errors.New("exit ladder_bps must be strictly increasing")
		}
	}
	if cfg.Exit.FloorBps <= 0 {
		return errors.New("invalid exit floor_bps")
	}
	if cfg.Exit.MonitorPeriod <= 0 {
		return errors.New("invalid exit monitor_period")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("SOLPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envKey := v.GetString("WALLET_KEY"); envKey != "" {
		cfg.WalletKey = envKey
	}

	if envRPCList := v.GetString("RPC_LIST"); envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	return nil
}
