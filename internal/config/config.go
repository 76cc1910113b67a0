// Package config loads the engine and simulation settings from defaults, an
// optional config file, LOB_ environment variables and command line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/simulation"
)

// EnvPrefix is prepended to every environment key, so simulation.seed is
// read from LOB_SIMULATION_SEED.
const EnvPrefix = "LOB"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the whole configuration tree, one field per top-level key.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Sequencer  SequencerConfig  `mapstructure:"sequencer"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Stress     StressConfig     `mapstructure:"stress"`
}

// LogConfig selects the slog level (debug, info, warn, error) and the
// output format (json or text).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig.Addr is where /metrics is served; empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// PoolConfig.Prealloc is how many order records the book allocates up front.
type PoolConfig struct {
	Prealloc int `mapstructure:"prealloc"`
}

// SequencerConfig.Buffer sizes the sequencer's inbound and result channels
// and the market data feed.
type SequencerConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// SimulationConfig sizes a simulation run; see simulation.RunConfig.
type SimulationConfig struct {
	Seed        uint64      `mapstructure:"seed"`
	Agents      int         `mapstructure:"agents"`
	Days        int         `mapstructure:"days"`
	TicksPerDay int         `mapstructure:"ticks_per_day"`
	Agent       AgentConfig `mapstructure:"agent"`
}

// AgentConfig mirrors simulation.Settings. StartingCash is a decimal string
// so it survives env and flag layers without float rounding.
type AgentConfig struct {
	StartingCash       string  `mapstructure:"starting_cash"`
	StartingHoldings   int64   `mapstructure:"starting_holdings"`
	MakeOrderWhenIdle  int     `mapstructure:"make_order_when_idle"`
	OrderSize          float64 `mapstructure:"order_size"`
	CancelChance       int     `mapstructure:"cancel_chance"`
	ModifyChance       int     `mapstructure:"modify_chance"`
	AddChance          int     `mapstructure:"add_chance"`
	NoPriceOffer       int64   `mapstructure:"no_price_offer"`
	BiasFactor         float64 `mapstructure:"bias_factor"`
	OppositeBiasChance int     `mapstructure:"opposite_bias_chance"`
	UseFairPrice       bool    `mapstructure:"use_fair_price"`
	FairPrice          int64   `mapstructure:"fair_price"`
}

// StressConfig.File is the order file the stress command replays.
type StressConfig struct {
	File string `mapstructure:"file"`
}

// flagKeys maps command line flag names onto config keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"metrics-addr": "metrics.addr",
	"prealloc":     "pool.prealloc",
	"buffer":       "sequencer.buffer",
	"seed":         "simulation.seed",
	"agents":       "simulation.agents",
	"days":         "simulation.days",
	"ticks":        "simulation.ticks_per_day",
	"file":         "stress.file",
}

func setDefaults(v *viper.Viper) {
	run := simulation.DefaultRunConfig()
	s := run.Settings

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("pool.prealloc", 1000)
	v.SetDefault("sequencer.buffer", 4096)

	v.SetDefault("simulation.seed", run.Seed)
	v.SetDefault("simulation.agents", run.Agents)
	v.SetDefault("simulation.days", run.Days)
	v.SetDefault("simulation.ticks_per_day", run.TicksPerDay)
	v.SetDefault("simulation.agent.starting_cash", s.StartingCash.String())
	v.SetDefault("simulation.agent.starting_holdings", s.StartingHoldings)
	v.SetDefault("simulation.agent.make_order_when_idle", s.MakeOrderWhenIdle)
	v.SetDefault("simulation.agent.order_size", s.OrderSize)
	v.SetDefault("simulation.agent.cancel_chance", s.CancelChance)
	v.SetDefault("simulation.agent.modify_chance", s.ModifyChance)
	v.SetDefault("simulation.agent.add_chance", s.AddChance)
	v.SetDefault("simulation.agent.no_price_offer", int64(s.NoPriceOffer))
	v.SetDefault("simulation.agent.bias_factor", s.BiasFactor)
	v.SetDefault("simulation.agent.opposite_bias_chance", s.OppositeBiasChance)
	v.SetDefault("simulation.agent.use_fair_price", s.UseFairPrice)
	v.SetDefault("simulation.agent.fair_price", int64(s.FairPrice))

	v.SetDefault("stress.file", "output/orders.txt")
}

// Load builds a Config. path may be empty; flags may be nil. Only flags the
// user actually set override lower layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component could run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format %q, want json or text", ErrInvalidConfig, c.Log.Format)
	}
	if c.Pool.Prealloc < 0 {
		return fmt.Errorf("%w: pool prealloc %d is negative", ErrInvalidConfig, c.Pool.Prealloc)
	}
	if c.Sequencer.Buffer < 0 {
		return fmt.Errorf("%w: sequencer buffer %d is negative", ErrInvalidConfig, c.Sequencer.Buffer)
	}
	run, err := c.RunConfig()
	if err != nil {
		return err
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// RunConfig maps the simulation section onto a simulation.RunConfig.
func (c *Config) RunConfig() (simulation.RunConfig, error) {
	a := c.Simulation.Agent
	cash, err := decimal.NewFromString(a.StartingCash)
	if err != nil {
		return simulation.RunConfig{}, fmt.Errorf("%w: starting cash %q: %w", ErrInvalidConfig, a.StartingCash, err)
	}
	return simulation.RunConfig{
		Seed:        c.Simulation.Seed,
		Agents:      c.Simulation.Agents,
		Days:        c.Simulation.Days,
		TicksPerDay: c.Simulation.TicksPerDay,
		Settings: simulation.Settings{
			StartingCash:       cash,
			StartingHoldings:   a.StartingHoldings,
			MakeOrderWhenIdle:  a.MakeOrderWhenIdle,
			OrderSize:          a.OrderSize,
			CancelChance:       a.CancelChance,
			ModifyChance:       a.ModifyChance,
			AddChance:          a.AddChance,
			NoPriceOffer:       domain.Price(a.NoPriceOffer),
			BiasFactor:         a.BiasFactor,
			OppositeBiasChance: a.OppositeBiasChance,
			UseFairPrice:       a.UseFairPrice,
			FairPrice:          domain.Price(a.FairPrice),
		},
	}, nil
}
