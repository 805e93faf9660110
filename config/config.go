package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets and paths after loading.
const (
	EnvTelegramToken = "SIGNALGOV_TELEGRAM_TOKEN"
	EnvTelegramChat  = "SIGNALGOV_TELEGRAM_CHAT"
	EnvDBPath        = "SIGNALGOV_DB"
)

// Config represents the complete engine configuration
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Scan      ScanConfig      `json:"scan" yaml:"scan"`
	Consensus ConsensusConfig `json:"consensus" yaml:"consensus"`
	Allocator AllocatorConfig `json:"allocator" yaml:"allocator"`
	Portfolio PortfolioConfig `json:"portfolio" yaml:"portfolio"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Guard     GuardConfig     `json:"guard" yaml:"guard"`
	Follow    FollowConfig    `json:"follow" yaml:"follow"`
	Weights   WeightsConfig   `json:"weights" yaml:"weights"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

// AccountConfig holds the deposit all sizing is computed against.
type AccountConfig struct {
	Deposit  float64 `json:"deposit" yaml:"deposit"`
	Currency string  `json:"currency" yaml:"currency"`
}

// ScanConfig controls the periodic acceptance pass.
type ScanConfig struct {
	IntervalSec int            `json:"interval_sec" yaml:"interval_sec"`
	Symbols     []string       `json:"symbols" yaml:"symbols"`
	Reference   string         `json:"reference" yaml:"reference"` // correlation reference, e.g. BTCUSDT
	Sessions    SessionsConfig `json:"sessions" yaml:"sessions"`
}

// SessionsConfig restricts new signals to a set of UTC hours.
type SessionsConfig struct {
	Enabled    bool  `json:"enabled" yaml:"enabled"`
	AllowHours []int `json:"allow_hours,omitempty" yaml:"allow_hours,omitempty"`
}

type ConsensusConfig struct {
	MinScore        float64 `json:"min_score" yaml:"min_score"`
	MaxPerSymbol    int     `json:"max_per_symbol" yaml:"max_per_symbol"`
	CooldownSameSec int     `json:"cooldown_same_sec" yaml:"cooldown_same_sec"` // re-entry block, same side
	CooldownOppSec  int     `json:"cooldown_opp_sec" yaml:"cooldown_opp_sec"`   // re-entry block, opposite side
}

type AllocatorConfig struct {
	MaxRiskPct float64 `json:"max_risk_pct" yaml:"max_risk_pct"` // 0.005 = 0.5% of deposit per pass
}

type PortfolioConfig struct {
	DayMaxRiskPct  float64 `json:"day_max_risk_pct" yaml:"day_max_risk_pct"` // 0.015
	MaxOpenSignals int     `json:"max_open_signals" yaml:"max_open_signals"`
}

type RiskConfig struct {
	ATRMult     float64         `json:"atr_mult" yaml:"atr_mult"`   // stop distance in ATRs
	RRTarget    float64         `json:"rr_target" yaml:"rr_target"` // reward multiple at TP1
	MinNotional float64         `json:"min_notional" yaml:"min_notional"`
	Leverage    LeverageConfig  `json:"leverage" yaml:"leverage"`
	PartialTP   PartialTPConfig `json:"partial_tp" yaml:"partial_tp"`
	CorrCap     CorrCapConfig   `json:"corr_cap" yaml:"corr_cap"`
}

// LeverageConfig maps ATR% bands to leverage. Bands are ascending ATR%
// boundaries; Multipliers has one more entry than Bands.
type LeverageConfig struct {
	Auto        bool      `json:"auto" yaml:"auto"`
	Base        float64   `json:"base" yaml:"base"`
	Min         float64   `json:"min" yaml:"min"`
	Max         float64   `json:"max" yaml:"max"`
	Bands       []float64 `json:"atr_pct_bands" yaml:"atr_pct_bands"`
	Multipliers []float64 `json:"multipliers" yaml:"multipliers"`
}

type PartialTPConfig struct {
	Fraction1         float64 `json:"fraction1" yaml:"fraction1"`
	Fraction2         float64 `json:"fraction2" yaml:"fraction2"`
	BreakevenAfterTP1 bool    `json:"be_after_tp1" yaml:"be_after_tp1"`
}

type CorrCapConfig struct {
	Enable        bool    `json:"enable" yaml:"enable"`
	BetaThreshold float64 `json:"beta_th" yaml:"beta_th"`
	Window        int     `json:"window" yaml:"window"`
	Fallback      float64 `json:"fallback" yaml:"fallback"`
}

// GuardConfig drives the day governor.
type GuardConfig struct {
	StopDayR               float64 `json:"stop_day_r" yaml:"stop_day_r"`   // negative, e.g. -3
	MaxMDDPct              float64 `json:"max_mdd_pct" yaml:"max_mdd_pct"` // percent, 5 = 5%
	LossStreakCooldown     int     `json:"loss_streak_cooldown" yaml:"loss_streak_cooldown"`
	CooldownAfterStreakSec int     `json:"cooldown_sec_after_streak" yaml:"cooldown_sec_after_streak"`
	CooldownAfterStopSec   int     `json:"cooldown_sec_after_stop" yaml:"cooldown_sec_after_stop"`
	MaxSignalsPerDay       int     `json:"max_signals_per_day" yaml:"max_signals_per_day"`
	CooldownAfterTPSec     int     `json:"cooldown_sec_after_tp" yaml:"cooldown_sec_after_tp"` // 0 disables
	CooldownAfterSLSec     int     `json:"cooldown_sec_after_sl" yaml:"cooldown_sec_after_sl"` // 0 disables
}

// FollowConfig controls the lifecycle monitor.
type FollowConfig struct {
	PollSec         int `json:"poll_sec" yaml:"poll_sec"`
	LookaheadMin    int `json:"lookahead_min" yaml:"lookahead_min"` // signal TTL
	PriceTimeoutSec int `json:"price_timeout_sec" yaml:"price_timeout_sec"`
}

type WeightsConfig struct {
	Enable     bool                      `json:"enable" yaml:"enable"`
	MinFactor  float64                   `json:"min_factor" yaml:"min_factor"`
	MaxFactor  float64                   `json:"max_factor" yaml:"max_factor"`
	Strategies map[string]StrategyWeight `json:"strategies,omitempty" yaml:"strategies,omitempty"`
}

type StrategyWeight struct {
	Weight   float64 `json:"weight" yaml:"weight"`
	MinScore float64 `json:"min_score" yaml:"min_score"`
	// ATRMult overrides risk.atr_mult for this strategy's stops when set.
	ATRMult float64 `json:"atr_mult_sl,omitempty" yaml:"atr_mult_sl,omitempty"`
}

type StoreConfig struct {
	DBPath    string `json:"db_path" yaml:"db_path"`
	EventsCSV string `json:"events_csv,omitempty" yaml:"events_csv,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty" yaml:"token,omitempty"`
	ChatID string `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool { return t.Token != "" && t.ChatID != "" }

type MetricsConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"` // e.g. ":9102", empty disables
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (s ScanConfig) Interval() time.Duration { return seconds(s.IntervalSec) }
func (f FollowConfig) Poll() time.Duration { return seconds(f.PollSec) }
func (f FollowConfig) TTL() time.Duration { return time.Duration(f.LookaheadMin) * time.Minute }
func (f FollowConfig) PriceTimeout() time.Duration { return seconds(f.PriceTimeoutSec) }
func (c ConsensusConfig) SameSide() time.Duration { return seconds(c.CooldownSameSec) }
func (c ConsensusConfig) OppositeSide() time.Duration { return seconds(c.CooldownOppSec) }
func (g GuardConfig) AfterStreak() time.Duration { return seconds(g.CooldownAfterStreakSec) }
func (g GuardConfig) AfterStop() time.Duration { return seconds(g.CooldownAfterStopSec) }
func (g GuardConfig) AfterTP() time.Duration { return seconds(g.CooldownAfterTPSec) }
func (g GuardConfig) AfterSL() time.Duration { return seconds(g.CooldownAfterSLSec) }

// Allowed reports whether new signals may be produced at t.
func (s SessionsConfig) Allowed(t time.Time) bool {
	if !s.Enabled {
		return true
	}
	h := t.UTC().Hour()
	for _, a := range s.AllowHours {
		if a == h {
			return true
		}
	}
	return false
}

// Weight returns the clamped score multiplier for a strategy.
func (w WeightsConfig) Weight(strategy string) float64 {
	if !w.Enable {
		return 1.0
	}
	f := 1.0
	if sw, ok := w.Strategies[strings.ToLower(strategy)]; ok && sw.Weight > 0 {
		f = sw.Weight
	}
	if w.MaxFactor > 0 && f > w.MaxFactor {
		f = w.MaxFactor
	}
	if f < w.MinFactor {
		f = w.MinFactor
	}
	return f
}

// MinScore returns the per-strategy prefilter, zero when unset.
func (w WeightsConfig) MinScore(strategy string) float64 {
	return w.Strategies[strings.ToLower(strategy)].MinScore
}

// StopMult returns the strategy's stop ATR multiplier, or def when unset.
// It applies whether or not score weighting is enabled.
func (w WeightsConfig) StopMult(strategy string, def float64) float64 {
	if m := w.Strategies[strings.ToLower(strategy)].ATRMult; m > 0 {
		return m
	}
	return def
}

// LoadFromFile loads configuration from a file (JSON or YAML)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadEnv loads a dotenv file into the process environment. A missing
// file is not an error; the system environment is used as is.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays secrets and paths from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv(EnvTelegramChat); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Store.DBPath = v
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Deposit <= 0 {
		return fmt.Errorf("account.deposit must be positive")
	}
	if c.Scan.IntervalSec <= 0 {
		return fmt.Errorf("scan.interval_sec must be positive")
	}
	for _, h := range c.Scan.Sessions.AllowHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("scan.sessions.allow_hours: hour %d out of range", h)
		}
	}
	if c.Consensus.MaxPerSymbol < 1 {
		return fmt.Errorf("consensus.max_per_symbol must be at least 1")
	}
	if c.Consensus.CooldownSameSec < 0 || c.Consensus.CooldownOppSec < 0 {
		return fmt.Errorf("consensus cooldowns must not be negative")
	}
	if c.Allocator.MaxRiskPct <= 0 || c.Allocator.MaxRiskPct > 1 {
		return fmt.Errorf("allocator.max_risk_pct must be between 0 and 1")
	}
	if c.Portfolio.DayMaxRiskPct <= 0 || c.Portfolio.DayMaxRiskPct > 1 {
		return fmt.Errorf("portfolio.day_max_risk_pct must be between 0 and 1")
	}
	if c.Portfolio.MaxOpenSignals < 1 {
		return fmt.Errorf("portfolio.max_open_signals must be at least 1")
	}
	if c.Risk.ATRMult <= 0 {
		return fmt.Errorf("risk.atr_mult must be positive")
	}
	if c.Risk.RRTarget <= 0 {
		return fmt.Errorf("risk.rr_target must be positive")
	}
	if c.Risk.MinNotional < 0 {
		return fmt.Errorf("risk.min_notional must not be negative")
	}
	if err := c.Risk.Leverage.validate(); err != nil {
		return err
	}
	p := c.Risk.PartialTP
	if p.Fraction1 < 0 || p.Fraction2 < 0 || p.Fraction1+p.Fraction2 > 1 {
		return fmt.Errorf("risk.partial_tp fractions must be non-negative and sum to at most 1")
	}
	if c.Risk.CorrCap.Enable && c.Risk.CorrCap.BetaThreshold <= 0 {
		return fmt.Errorf("risk.corr_cap.beta_th must be positive when enabled")
	}
	if c.Guard.StopDayR >= 0 {
		return fmt.Errorf("guard.stop_day_r must be negative")
	}
	if c.Guard.MaxMDDPct <= 0 {
		return fmt.Errorf("guard.max_mdd_pct must be positive")
	}
	if c.Guard.LossStreakCooldown < 1 {
		return fmt.Errorf("guard.loss_streak_cooldown must be at least 1")
	}
	if c.Guard.MaxSignalsPerDay < 1 {
		return fmt.Errorf("guard.max_signals_per_day must be at least 1")
	}
	if c.Guard.CooldownAfterStreakSec < 0 || c.Guard.CooldownAfterStopSec < 0 ||
		c.Guard.CooldownAfterTPSec < 0 || c.Guard.CooldownAfterSLSec < 0 {
		return fmt.Errorf("guard cooldowns must not be negative")
	}
	if c.Follow.PollSec <= 0 {
		return fmt.Errorf("follow.poll_sec must be positive")
	}
	if c.Follow.LookaheadMin <= 0 {
		return fmt.Errorf("follow.lookahead_min must be positive")
	}
	if c.Weights.Enable && c.Weights.MaxFactor < c.Weights.MinFactor {
		return fmt.Errorf("weights.max_factor must be >= weights.min_factor")
	}
	for name, sw := range c.Weights.Strategies {
		if sw.ATRMult < 0 {
			return fmt.Errorf("weights.strategies.%s.atr_mult_sl must not be negative", name)
		}
	}
	if c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path is required")
	}
	return nil
}

func (l LeverageConfig) validate() error {
	if l.Min <= 0 || l.Max < l.Min {
		return fmt.Errorf("risk.leverage requires 0 < min <= max")
	}
	if l.Base <= 0 {
		return fmt.Errorf("risk.leverage.base must be positive")
	}
	if !l.Auto {
		return nil
	}
	if len(l.Multipliers) != len(l.Bands)+1 {
		return fmt.Errorf("risk.leverage.multipliers needs %d entries for %d bands", len(l.Bands)+1, len(l.Bands))
	}
	for i := 1; i < len(l.Bands); i++ {
		if l.Bands[i] <= l.Bands[i-1] {
			return fmt.Errorf("risk.leverage.atr_pct_bands must be ascending")
		}
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Deposit:  1000,
			Currency: "USDT",
		},
		Scan: ScanConfig{
			IntervalSec: 15,
			Symbols:     []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
			Reference:   "BTCUSDT",
			Sessions: SessionsConfig{
				Enabled:    false,
				AllowHours: []int{7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21},
			},
		},
		Consensus: ConsensusConfig{
			MinScore:        2.0,
			MaxPerSymbol:    1,
			CooldownSameSec: 600,
			CooldownOppSec:  1800,
		},
		Allocator: AllocatorConfig{
			MaxRiskPct: 0.005,
		},
		Portfolio: PortfolioConfig{
			DayMaxRiskPct:  0.015,
			MaxOpenSignals: 3,
		},
		Risk: RiskConfig{
			ATRMult:     1.4,
			RRTarget:    2.0,
			MinNotional: 5.0,
			Leverage: LeverageConfig{
				Auto:        true,
				Base:        20,
				Min:         5,
				Max:         30,
				Bands:       []float64{0.3, 0.6, 1.0},
				Multipliers: []float64{1.0, 0.75, 0.5, 0.33},
			},
			PartialTP: PartialTPConfig{
				Fraction1:         0.5,
				Fraction2:         0.3,
				BreakevenAfterTP1: true,
			},
			CorrCap: CorrCapConfig{
				Enable:        true,
				BetaThreshold: 0.8,
				Window:        20,
				Fallback:      0,
			},
		},
		Guard: GuardConfig{
			StopDayR:               -3.0,
			MaxMDDPct:              5.0,
			LossStreakCooldown:     3,
			CooldownAfterStreakSec: 1800,
			CooldownAfterStopSec:   8 * 3600,
			MaxSignalsPerDay:       60,
			CooldownAfterTPSec:     0,
			CooldownAfterSLSec:     1800,
		},
		Follow: FollowConfig{
			PollSec:         3,
			LookaheadMin:    60,
			PriceTimeoutSec: 5,
		},
		Weights: WeightsConfig{
			Enable:    false,
			MinFactor: 0.85,
			MaxFactor: 1.15,
		},
		Store: StoreConfig{
			DBPath:    "./signalgov.sqlite",
			EventsCSV: "./events.csv",
		},
	}
}
