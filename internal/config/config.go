// Package config provides configuration management for the hunter.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"alphahunter/internal/errors"
	"alphahunter/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Strategy      StrategyConfig     `mapstructure:"strategy"`
	Momentum      MomentumConfig     `mapstructure:"momentum"`
	Regime        RegimeConfig       `mapstructure:"regime"`
	Weights       FactorWeights      `mapstructure:"weights"`
	Scoring       ScoringConfig      `mapstructure:"scoring"`
	Sector        SectorConfig       `mapstructure:"sector"`
	Confirmation  ConfirmationConfig `mapstructure:"confirmation"`
	Kelly         KellyConfig        `mapstructure:"kelly"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Monitor       MonitorConfig      `mapstructure:"monitor"`
	Backtest      BacktestConfig     `mapstructure:"backtest"`
	Tracking      TrackingConfig     `mapstructure:"tracking"`
	Data          DataConfig         `mapstructure:"data"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Store         StoreConfig        `mapstructure:"store"`
	Schedule      ScheduleConfig     `mapstructure:"schedule"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       logging.LogConfig  `mapstructure:"logging"`
}

// StrategyConfig holds the basic condition filter bands.
type StrategyConfig struct {
	ChangeMin      float64  `mapstructure:"change_min"`      // percent
	ChangeMax      float64  `mapstructure:"change_max"`      // percent
	TurnoverMin    float64  `mapstructure:"turnover_min"`    // percent
	TurnoverMax    float64  `mapstructure:"turnover_max"`    // percent
	VolumeRatioMin float64  `mapstructure:"volume_ratio_min"`
	AmplitudeMax   float64  `mapstructure:"amplitude_max"`   // fraction
	MAPeriod       int      `mapstructure:"ma_period"`
	BiasMax        float64  `mapstructure:"bias_max"`        // fraction
	PrevChangeMin  float64  `mapstructure:"prev_change_min"` // percent
	PrevChangeMax  float64  `mapstructure:"prev_change_max"` // percent
	RequireBullish bool     `mapstructure:"require_bullish"`
	Blacklist      []string `mapstructure:"blacklist"`
}

// MomentumConfig holds the RPS ranker and gate settings.
type MomentumConfig struct {
	LongWindow    int     `mapstructure:"long_window"`
	ShortWindow   int     `mapstructure:"short_window"`
	HistoryDepth  int     `mapstructure:"history_depth"`
	BreadthWindow int     `mapstructure:"breadth_window"`
	RPSMin        float64 `mapstructure:"rps_min"`
	CacheKey      string  `mapstructure:"cache_key"`
}

// RegimeConfig holds market regime thresholds and adjustments.
type RegimeConfig struct {
	IndexSymbol        string  `mapstructure:"index_symbol"`
	IndexDropThreshold float64 `mapstructure:"index_drop_threshold"` // percent
	SleepBelowMA20     bool    `mapstructure:"sleep_below_ma20"`

	UptrendDiscount   float64 `mapstructure:"uptrend_discount"`
	ChoppyDiscount    float64 `mapstructure:"choppy_discount"`
	ReboundDiscount   float64 `mapstructure:"rebound_discount"`
	DowntrendDiscount float64 `mapstructure:"downtrend_discount"`
	CrashDiscount     float64 `mapstructure:"crash_discount"`

	ColdBreadth            float64 `mapstructure:"cold_breadth"`
	HotBreadth             float64 `mapstructure:"hot_breadth"`
	ColdRPSMin             float64 `mapstructure:"cold_rps_min"`
	ColdPositionMultiplier float64 `mapstructure:"cold_position_multiplier"`
	HotTurnoverSpikeRatio  float64 `mapstructure:"hot_turnover_spike_ratio"`
}

// FactorWeights weights the composite score. They should sum to 1.0.
type FactorWeights struct {
	Momentum  float64 `mapstructure:"momentum"`
	MoneyFlow float64 `mapstructure:"money_flow"`
	Sector    float64 `mapstructure:"sector"`
	Valuation float64 `mapstructure:"valuation"`
	Volume    float64 `mapstructure:"volume"`
}

// Sum returns the total weight.
func (w FactorWeights) Sum() float64 {
	return w.Momentum + w.MoneyFlow + w.Sector + w.Valuation + w.Volume
}

// ScoringConfig holds grading and trap thresholds.
type ScoringConfig struct {
	MinTotalScore    float64 `mapstructure:"min_total_score"`
	GradeA           float64 `mapstructure:"grade_a"`
	GradeB           float64 `mapstructure:"grade_b"`
	GradeC           float64 `mapstructure:"grade_c"`
	TrapRPS          float64 `mapstructure:"trap_rps"`
	InflowThreshold  float64 `mapstructure:"inflow_threshold"`  // 10k CNY
	OutflowThreshold float64 `mapstructure:"outflow_threshold"` // 10k CNY, negative
	CoreRPS          float64 `mapstructure:"core_rps"`
	PotentialRPS     float64 `mapstructure:"potential_rps"`
}

// SectorConfig holds the sector-strength filter.
type SectorConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	TopPct  float64 `mapstructure:"top_pct"`
}

// ConfirmationConfig holds the second-pass settings.
type ConfirmationConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	TopN                int     `mapstructure:"top_n"`
	ExcludeRatio        float64 `mapstructure:"exclude_ratio"`
	StrongRatio         float64 `mapstructure:"strong_ratio"`
	StrongConcentration float64 `mapstructure:"strong_concentration"`
	SlopeWindow         int     `mapstructure:"slope_window"`
}

// KellyConfig holds position sizing parameters.
type KellyConfig struct {
	BaseAmount        float64 `mapstructure:"base_amount"`
	SafetyFactor      float64 `mapstructure:"safety_factor"`
	ReferenceFraction float64 `mapstructure:"reference_fraction"`
	MinMultiple       float64 `mapstructure:"min_multiple"`
	MaxMultiple       float64 `mapstructure:"max_multiple"`
	DefaultMultiple   float64 `mapstructure:"default_multiple"`
	MinTrades         int     `mapstructure:"min_trades"`
	LookbackDays      int     `mapstructure:"lookback_days"`
	LotSize           int     `mapstructure:"lot_size"`
}

// GradeRisk holds the stop and target parameters of one grade.
type GradeRisk struct {
	ATRMultiplier    float64 `mapstructure:"atr_multiplier"`
	FixedStopPct     float64 `mapstructure:"fixed_stop_pct"`     // negative percent
	MaxProfitPct     float64 `mapstructure:"max_profit_pct"`     // trailing activation
	DrawdownPct      float64 `mapstructure:"drawdown_pct"`       // positive percent
	TakeProfitPct    float64 `mapstructure:"take_profit_pct"`    // notice threshold
	LossAttentionPct float64 `mapstructure:"loss_attention_pct"` // negative percent
}

// RiskConfig holds the risk engine parameters.
type RiskConfig struct {
	ATRPeriod    int                  `mapstructure:"atr_period"`
	MAPeriod     int                  `mapstructure:"ma_period"`
	CoreGrade    string               `mapstructure:"core_grade"`
	DefaultGrade string               `mapstructure:"default_grade"`
	Grades       map[string]GradeRisk `mapstructure:"grades"`
}

// MonitorConfig holds intraday monitoring settings.
type MonitorConfig struct {
	AlertCooldown time.Duration `mapstructure:"alert_cooldown"`
	AutoOpen      bool          `mapstructure:"auto_open"`
	GapDownPct    float64       `mapstructure:"gap_down_pct"`
	CriticalGap   float64       `mapstructure:"critical_gap_pct"`
	GapUpPct      float64       `mapstructure:"gap_up_pct"`
	HighOpenPct   float64       `mapstructure:"high_open_pct"`
}

// BacktestConfig holds replay costs and limits.
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	TradeAmount    float64 `mapstructure:"trade_amount"`
	MaxPositions   int     `mapstructure:"max_positions"`
	MaxHoldDays    int     `mapstructure:"max_hold_days"`  // trading days, 0 waits for an exit rule
	CommissionPct  float64 `mapstructure:"commission_pct"` // percent per side
	StampDutyPct   float64 `mapstructure:"stamp_duty_pct"` // percent, sells only
	SampleSize     int     `mapstructure:"sample_size"`
}

// TrackingConfig holds the recommendation tracker settings.
type TrackingConfig struct {
	Enabled       bool  `mapstructure:"enabled"`
	Horizons      []int `mapstructure:"horizons"` // trading days after the scan
	RetentionDays int   `mapstructure:"retention_days"`
}

// DataConfig holds market data access settings.
type DataConfig struct {
	Dir             string        `mapstructure:"dir"`
	MaxWorkers      int           `mapstructure:"max_workers"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst       int           `mapstructure:"rate_burst"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
	HistoryDays     int           `mapstructure:"history_days"`
	Adjust          string        `mapstructure:"adjust"`
	Location        string        `mapstructure:"location"`
	// Holidays adds exchange closures (YYYY-MM-DD) to the built-in calendar.
	Holidays        []string      `mapstructure:"holidays"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // memory, redis
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres, memory
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// ScheduleConfig holds cron specs (with seconds).
type ScheduleConfig struct {
	RankUpdate string   `mapstructure:"rank_update"`
	Scans      []string `mapstructure:"scans"`
	Premarket  string   `mapstructure:"premarket"`
	Monitor    string   `mapstructure:"monitor"`
	DailyCheck string   `mapstructure:"daily_check"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetricsConfig holds the serve listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/alphahunter"
	}
	return filepath.Join(home, ".config", "alphahunter")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is written from the template and defaults are used.
func Load(configDir string) (*Config, []string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.normalize()

	applyEnvOverrides(cfg)

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, fmt.Errorf("%w: %v", errors.ErrConfigInvalid, err)
	}
	return cfg, warnings, nil
}

// Default returns the built-in configuration without touching the disk.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	// Defaults are all plain values; decoding cannot fail.
	_ = v.Unmarshal(cfg)
	cfg.normalize()
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("strategy.change_min", 0.3)
	v.SetDefault("strategy.change_max", 4.0)
	v.SetDefault("strategy.turnover_min", 5.0)
	v.SetDefault("strategy.turnover_max", 20.0)
	v.SetDefault("strategy.volume_ratio_min", 0.8)
	v.SetDefault("strategy.amplitude_max", 0.05)
	v.SetDefault("strategy.ma_period", 5)
	v.SetDefault("strategy.bias_max", 0.02)
	v.SetDefault("strategy.prev_change_min", 0.0)
	v.SetDefault("strategy.prev_change_max", 5.0)
	v.SetDefault("strategy.require_bullish", true)
	v.SetDefault("strategy.blacklist", []string{})

	v.SetDefault("momentum.long_window", 120)
	v.SetDefault("momentum.short_window", 20)
	v.SetDefault("momentum.history_depth", 5)
	v.SetDefault("momentum.breadth_window", 20)
	v.SetDefault("momentum.rps_min", 40.0)
	v.SetDefault("momentum.cache_key", "momentum:rank_table")

	v.SetDefault("regime.index_symbol", "000001")
	v.SetDefault("regime.index_drop_threshold", -2.0)
	v.SetDefault("regime.sleep_below_ma20", false)
	v.SetDefault("regime.uptrend_discount", 1.0)
	v.SetDefault("regime.choppy_discount", 0.9)
	v.SetDefault("regime.rebound_discount", 0.8)
	v.SetDefault("regime.downtrend_discount", 0.7)
	v.SetDefault("regime.crash_discount", 0.5)
	v.SetDefault("regime.cold_breadth", 8.0)
	v.SetDefault("regime.hot_breadth", 30.0)
	v.SetDefault("regime.cold_rps_min", 70.0)
	v.SetDefault("regime.cold_position_multiplier", 0.5)
	v.SetDefault("regime.hot_turnover_spike_ratio", 3.0)

	v.SetDefault("weights.momentum", 0.30)
	v.SetDefault("weights.money_flow", 0.25)
	v.SetDefault("weights.sector", 0.20)
	v.SetDefault("weights.valuation", 0.15)
	v.SetDefault("weights.volume", 0.10)

	v.SetDefault("scoring.min_total_score", 60.0)
	v.SetDefault("scoring.grade_a", 80.0)
	v.SetDefault("scoring.grade_b", 70.0)
	v.SetDefault("scoring.grade_c", 60.0)
	v.SetDefault("scoring.trap_rps", 80.0)
	v.SetDefault("scoring.inflow_threshold", 1000.0)
	v.SetDefault("scoring.outflow_threshold", -1000.0)
	v.SetDefault("scoring.core_rps", 90.0)
	v.SetDefault("scoring.potential_rps", 75.0)

	v.SetDefault("sector.enabled", true)
	v.SetDefault("sector.top_pct", 0.33)

	v.SetDefault("confirmation.enabled", true)
	v.SetDefault("confirmation.top_n", 10)
	v.SetDefault("confirmation.exclude_ratio", -0.5)
	v.SetDefault("confirmation.strong_ratio", 0.3)
	v.SetDefault("confirmation.strong_concentration", 0.5)
	v.SetDefault("confirmation.slope_window", 5)

	v.SetDefault("kelly.base_amount", 50000.0)
	v.SetDefault("kelly.safety_factor", 0.5)
	v.SetDefault("kelly.reference_fraction", 0.25)
	v.SetDefault("kelly.min_multiple", 0.2)
	v.SetDefault("kelly.max_multiple", 2.0)
	v.SetDefault("kelly.default_multiple", 0.5)
	v.SetDefault("kelly.min_trades", 5)
	v.SetDefault("kelly.lookback_days", 30)
	v.SetDefault("kelly.lot_size", 100)

	v.SetDefault("risk.atr_period", 14)
	v.SetDefault("risk.ma_period", 5)
	v.SetDefault("risk.core_grade", "A")
	v.SetDefault("risk.default_grade", "B")
	for grade, gr := range DefaultGradeRisk() {
		prefix := "risk.grades." + strings.ToLower(grade) + "."
		v.SetDefault(prefix+"atr_multiplier", gr.ATRMultiplier)
		v.SetDefault(prefix+"fixed_stop_pct", gr.FixedStopPct)
		v.SetDefault(prefix+"max_profit_pct", gr.MaxProfitPct)
		v.SetDefault(prefix+"drawdown_pct", gr.DrawdownPct)
		v.SetDefault(prefix+"take_profit_pct", gr.TakeProfitPct)
		v.SetDefault(prefix+"loss_attention_pct", gr.LossAttentionPct)
	}

	v.SetDefault("monitor.alert_cooldown", time.Hour)
	v.SetDefault("monitor.auto_open", false)
	v.SetDefault("monitor.gap_down_pct", -2.0)
	v.SetDefault("monitor.critical_gap_pct", -3.0)
	v.SetDefault("monitor.gap_up_pct", 2.0)
	v.SetDefault("monitor.high_open_pct", 3.0)

	v.SetDefault("backtest.initial_capital", 1000000.0)
	v.SetDefault("backtest.trade_amount", 50000.0)
	v.SetDefault("backtest.max_positions", 5)
	v.SetDefault("backtest.max_hold_days", 1)
	v.SetDefault("backtest.commission_pct", 0.03)
	v.SetDefault("backtest.stamp_duty_pct", 0.1)
	v.SetDefault("backtest.sample_size", 500)

	v.SetDefault("tracking.enabled", true)
	v.SetDefault("tracking.horizons", []int{1, 3, 5})
	v.SetDefault("tracking.retention_days", 30)

	v.SetDefault("data.dir", filepath.Join(configDir, "data"))
	v.SetDefault("data.max_workers", 30)
	v.SetDefault("data.timeout", 10*time.Second)
	v.SetDefault("data.max_retries", 3)
	v.SetDefault("data.retry_delay", 500*time.Millisecond)
	v.SetDefault("data.rate_limit", 20.0)
	v.SetDefault("data.rate_burst", 10)
	v.SetDefault("data.breaker_failures", 5)
	v.SetDefault("data.breaker_cooldown", 30*time.Second)
	v.SetDefault("data.history_days", 150)
	v.SetDefault("data.adjust", "qfq")
	v.SetDefault("data.location", "Asia/Shanghai")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", filepath.Join(configDir, "hunter.db"))
	v.SetDefault("store.dsn", "")

	v.SetDefault("schedule.rank_update", "0 0 17 * * MON-FRI")
	v.SetDefault("schedule.scans", []string{"0 35 14 * * MON-FRI", "0 50 14 * * MON-FRI"})
	v.SetDefault("schedule.premarket", "0 26 9 * * MON-FRI")
	v.SetDefault("schedule.monitor", "0 */5 9-14 * * MON-FRI")
	v.SetDefault("schedule.daily_check", "0 10 15 * * MON-FRI")

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.url", "")
	v.SetDefault("notifications.webhook.timeout", 5*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9464")

	logCfg := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logCfg.Level)
	v.SetDefault("logging.console", logCfg.Console)
	v.SetDefault("logging.file", logCfg.File)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "hunter.log"))
	v.SetDefault("logging.max_size", logCfg.MaxSize)
	v.SetDefault("logging.max_backups", logCfg.MaxBackups)
	v.SetDefault("logging.max_age", logCfg.MaxAge)
}

// DefaultGradeRisk returns the built-in grade table. Grade A tolerates the
// widest stop and carries the highest target; grade D the tightest.
func DefaultGradeRisk() map[string]GradeRisk {
	return map[string]GradeRisk{
		"A": {ATRMultiplier: 2.0, FixedStopPct: -5.0, MaxProfitPct: 12, DrawdownPct: 5.0, TakeProfitPct: 15, LossAttentionPct: -6},
		"B": {ATRMultiplier: 1.5, FixedStopPct: -3.0, MaxProfitPct: 10, DrawdownPct: 3.0, TakeProfitPct: 10, LossAttentionPct: -5},
		"C": {ATRMultiplier: 1.2, FixedStopPct: -2.5, MaxProfitPct: 8, DrawdownPct: 2.5, TakeProfitPct: 8, LossAttentionPct: -4},
		"D": {ATRMultiplier: 1.0, FixedStopPct: -2.0, MaxProfitPct: 6, DrawdownPct: 2.0, TakeProfitPct: 6, LossAttentionPct: -3},
	}
}

// normalize upper-cases grade keys; viper lower-cases map keys on read.
func (c *Config) normalize() {
	grades := make(map[string]GradeRisk, len(c.Risk.Grades))
	for k, v := range c.Risk.Grades {
		grades[strings.ToUpper(k)] = v
	}
	c.Risk.Grades = grades
	c.Risk.CoreGrade = strings.ToUpper(c.Risk.CoreGrade)
	c.Risk.DefaultGrade = strings.ToUpper(c.Risk.DefaultGrade)
	for i, s := range c.Strategy.Blacklist {
		c.Strategy.Blacklist[i] = strings.TrimSpace(s)
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HUNTER_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("HUNTER_DB_DSN"); v != "" {
		cfg.Store.Driver = "postgres"
		cfg.Store.DSN = v
	}
	if v := os.Getenv("HUNTER_REDIS_ADDR"); v != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HUNTER_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.Enabled = true
		cfg.Notifications.Webhook.URL = v
	}
	if v := os.Getenv("HUNTER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration. Impossible settings are errors;
// settings that have a documented fallback come back as warnings.
func (c *Config) Validate() ([]string, error) {
	var warnings []string

	if c.Strategy.ChangeMin > c.Strategy.ChangeMax {
		return warnings, fmt.Errorf("strategy.change_min %.2f exceeds change_max %.2f", c.Strategy.ChangeMin, c.Strategy.ChangeMax)
	}
	if c.Strategy.TurnoverMin > c.Strategy.TurnoverMax {
		return warnings, fmt.Errorf("strategy.turnover_min %.2f exceeds turnover_max %.2f", c.Strategy.TurnoverMin, c.Strategy.TurnoverMax)
	}
	if c.Strategy.PrevChangeMin > c.Strategy.PrevChangeMax {
		return warnings, fmt.Errorf("strategy.prev_change_min exceeds prev_change_max")
	}
	if c.Strategy.MAPeriod < 2 || c.Risk.MAPeriod < 2 {
		return warnings, fmt.Errorf("ma_period must be at least 2")
	}
	if c.Momentum.LongWindow <= 0 || c.Momentum.ShortWindow <= 0 {
		return warnings, fmt.Errorf("momentum windows must be positive")
	}
	if c.Data.MaxWorkers <= 0 {
		return warnings, fmt.Errorf("data.max_workers must be positive")
	}
	if c.Risk.ATRPeriod <= 0 {
		return warnings, fmt.Errorf("risk.atr_period must be positive")
	}
	if c.Kelly.MinMultiple <= 0 || c.Kelly.MinMultiple > c.Kelly.MaxMultiple {
		return warnings, fmt.Errorf("kelly multiples must satisfy 0 < min <= max")
	}

	if c.Backtest.TradeAmount <= 0 || c.Backtest.InitialCapital < c.Backtest.TradeAmount {
		return warnings, fmt.Errorf("backtest.trade_amount must be positive and within initial_capital")
	}
	if c.Backtest.MaxPositions <= 0 {
		warnings = append(warnings, "backtest.max_positions must be positive, using 1")
		c.Backtest.MaxPositions = 1
	}

	var horizons []int
	for _, h := range c.Tracking.Horizons {
		if h <= 0 {
			warnings = append(warnings, fmt.Sprintf("tracking.horizons entry %d is not positive, ignored", h))
			continue
		}
		horizons = append(horizons, h)
	}
	sort.Ints(horizons)
	c.Tracking.Horizons = horizons

	var holidays []string
	for _, h := range c.Data.Holidays {
		if _, err := time.Parse(dateLayout, h); err != nil {
			warnings = append(warnings, fmt.Sprintf("data.holidays entry %q is not YYYY-MM-DD, ignored", h))
			continue
		}
		holidays = append(holidays, h)
	}
	c.Data.Holidays = holidays

	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > 0.001 {
		warnings = append(warnings, fmt.Sprintf("factor weights sum to %.3f, expected 1.0", sum))
	}
	if c.Sector.TopPct <= 0 || c.Sector.TopPct > 1 {
		warnings = append(warnings, fmt.Sprintf("sector.top_pct %.2f outside (0,1], sector filter disabled", c.Sector.TopPct))
		c.Sector.Enabled = false
	}

	defaults := DefaultGradeRisk()
	if c.Risk.Grades == nil {
		c.Risk.Grades = make(map[string]GradeRisk)
	}
	if _, ok := c.Risk.Grades[c.Risk.DefaultGrade]; !ok {
		warnings = append(warnings, fmt.Sprintf("default grade %q has no risk parameters, using B", c.Risk.DefaultGrade))
		c.Risk.DefaultGrade = "B"
	}
	var missing []string
	for grade, gr := range defaults {
		if _, ok := c.Risk.Grades[grade]; !ok {
			missing = append(missing, grade)
			c.Risk.Grades[grade] = gr
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		warnings = append(warnings, fmt.Sprintf("risk grades %s missing, using built-in values", strings.Join(missing, ",")))
	}

	if _, err := time.LoadLocation(c.Data.Location); err != nil {
		warnings = append(warnings, fmt.Sprintf("unknown data.location %q, using UTC+8", c.Data.Location))
		c.Data.Location = ""
	}

	return warnings, nil
}

// Location returns the market time zone.
func (c *Config) Location() *time.Location {
	if c.Data.Location != "" {
		if loc, err := time.LoadLocation(c.Data.Location); err == nil {
			return loc
		}
	}
	return time.FixedZone("CST", 8*3600)
}

const dateLayout = "2006-01-02"

// HolidayDates returns the configured extra closures in the market location.
func (c *Config) HolidayDates() []time.Time {
	loc := c.Location()
	var out []time.Time
	for _, h := range c.Data.Holidays {
		if d, err := time.ParseInLocation(dateLayout, h, loc); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// GradeParams returns the risk parameters for grade, falling back to the
// default grade. The boolean is false when the fallback was used.
func (r RiskConfig) GradeParams(grade string) (GradeRisk, bool) {
	if gr, ok := r.Grades[strings.ToUpper(grade)]; ok {
		return gr, true
	}
	if gr, ok := r.Grades[r.DefaultGrade]; ok {
		return gr, false
	}
	return DefaultGradeRisk()["B"], false
}
