// Package config loads the celojack HCL configuration.
//
//	server {
//	  address   = "localhost"
//	  port      = 8080
//	  log_level = "info"
//	}
//
//	rules {
//	  dealer_hits_soft_17 = true
//	  blackjack_pays      = "1.5"
//	  min_bet             = "1"
//	}
//
//	store {
//	  kind = "sqlite"
//	  path = "celojack.db"
//	}
//
//	settlement {
//	  default_mode     = "free"
//	  starting_credits = "1000"
//
//	  relay {
//	    endpoint = "http://localhost:8545"
//	  }
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"

	"github.com/lox/celojack/blackjack"
	"github.com/lox/celojack/internal/settlement"
	"github.com/lox/celojack/internal/store"
)

// Config is the complete configuration
type Config struct {
	Server     ServerSettings     `hcl:"server,block"`
	Rules      RulesSettings      `hcl:"rules,block"`
	Store      StoreSettings      `hcl:"store,block"`
	Settlement SettlementSettings `hcl:"settlement,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
	LogFile  string `hcl:"log_file,optional"`
	// AppURL is linked from share text
	AppURL string `hcl:"app_url,optional"`
}

// RulesSettings are the house rules. Money values are decimal strings.
type RulesSettings struct {
	DealerHitsSoft17 *bool  `hcl:"dealer_hits_soft_17,optional"`
	BlackjackPays    string `hcl:"blackjack_pays,optional"`
	AutoStandOn      int    `hcl:"auto_stand_on,optional"`
	StandOn21        *bool  `hcl:"stand_on_21,optional"`
	MinBet           string `hcl:"min_bet,optional"`
	MaxBet           string `hcl:"max_bet,optional"`
}

// StoreSettings selects the persistence backend
type StoreSettings struct {
	Kind string `hcl:"kind,optional"`
	Path string `hcl:"path,optional"`
}

// SettlementSettings configures free and on-chain play
type SettlementSettings struct {
	DefaultMode     string         `hcl:"default_mode,optional"`
	StartingCredits string         `hcl:"starting_credits,optional"`
	ClientSeed      string         `hcl:"client_seed,optional"`
	Relay           *RelaySettings `hcl:"relay,block"`
}

// RelaySettings configures the contract relay client. Durations use Go
// syntax ("10s").
type RelaySettings struct {
	Endpoint       string `hcl:"endpoint"`
	MaxRetries     int    `hcl:"max_retries,optional"`
	RetryDelay     string `hcl:"retry_delay,optional"`
	RequestTimeout string `hcl:"request_timeout,optional"`
	PollInterval   string `hcl:"poll_interval,optional"`
	ConfirmTimeout string `hcl:"confirm_timeout,optional"`
}

// fileConfig mirrors Config with every block optional
type fileConfig struct {
	Server     *ServerSettings     `hcl:"server,block"`
	Rules      *RulesSettings      `hcl:"rules,block"`
	Store      *StoreSettings      `hcl:"store,block"`
	Settlement *SettlementSettings `hcl:"settlement,block"`
}

// Default returns the default configuration
func Default() *Config {
	hitsSoft17 := true
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Rules: RulesSettings{
			DealerHitsSoft17: &hitsSoft17,
			BlackjackPays:    "1.5",
			AutoStandOn:      17,
			MinBet:           "1",
			MaxBet:           "0",
		},
		Store: StoreSettings{
			Kind: string(store.KindMemory),
		},
		Settlement: SettlementSettings{
			DefaultMode:     string(settlement.ModeFree),
			StartingCredits: "1000",
			ClientSeed:      settlement.DefaultClientSeed,
		},
	}
}

// Load loads configuration from an HCL file. A missing file yields the
// defaults.
func Load(filename string) (*Config, error) {
	src, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(src, filename)
}

// Parse decodes HCL source over the defaults
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config := Default()
	config.merge(fc)
	return config, nil
}

// merge overlays values set in the file onto the defaults
func (c *Config) merge(fc fileConfig) {
	if s := fc.Server; s != nil {
		setString(&c.Server.Address, s.Address)
		setString(&c.Server.LogLevel, s.LogLevel)
		setString(&c.Server.LogFile, s.LogFile)
		setString(&c.Server.AppURL, s.AppURL)
		if s.Port != 0 {
			c.Server.Port = s.Port
		}
	}
	if r := fc.Rules; r != nil {
		if r.DealerHitsSoft17 != nil {
			c.Rules.DealerHitsSoft17 = r.DealerHitsSoft17
		}
		setString(&c.Rules.BlackjackPays, r.BlackjackPays)
		setString(&c.Rules.MinBet, r.MinBet)
		setString(&c.Rules.MaxBet, r.MaxBet)
		if r.AutoStandOn != 0 {
			c.Rules.AutoStandOn = r.AutoStandOn
		}
		if r.StandOn21 != nil {
			c.Rules.StandOn21 = r.StandOn21
		}
	}
	if s := fc.Store; s != nil {
		setString(&c.Store.Kind, s.Kind)
		setString(&c.Store.Path, s.Path)
	}
	if s := fc.Settlement; s != nil {
		setString(&c.Settlement.DefaultMode, s.DefaultMode)
		setString(&c.Settlement.StartingCredits, s.StartingCredits)
		setString(&c.Settlement.ClientSeed, s.ClientSeed)
		if s.Relay != nil {
			relay := *s.Relay
			c.Settlement.Relay = &relay
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Server.Port))
	}
	if _, err := log.ParseLevel(c.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Server.LogLevel))
	}

	if _, err := c.BlackjackRules(); err != nil {
		errs = append(errs, err)
	}

	switch store.Kind(c.Store.Kind) {
	case store.KindMemory:
	case store.KindFile, store.KindSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store %s: path is required", c.Store.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store kind %q", c.Store.Kind))
	}

	mode, err := settlement.ParseMode(c.Settlement.DefaultMode)
	if err != nil {
		errs = append(errs, err)
	}
	if credits, err := decimal.NewFromString(c.Settlement.StartingCredits); err != nil || credits.IsNegative() {
		errs = append(errs, fmt.Errorf("invalid starting credits %q", c.Settlement.StartingCredits))
	}
	if mode == settlement.ModeOnChain && c.Settlement.Relay == nil {
		errs = append(errs, fmt.Errorf("on-chain default mode needs a relay block"))
	}
	if c.Settlement.Relay != nil {
		if _, err := c.Settlement.Relay.durations(); err != nil {
			errs = append(errs, err)
		}
		if c.Settlement.Relay.Endpoint == "" {
			errs = append(errs, fmt.Errorf("relay endpoint is required"))
		}
		if c.Settlement.Relay.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("relay max_retries must not be negative"))
		}
	}

	return errors.Join(errs...)
}

// Address returns the listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// BlackjackRules converts the rules block into validated Rules
func (c *Config) BlackjackRules() (blackjack.Rules, error) {
	rules := blackjack.DefaultRules()
	r := c.Rules

	if r.DealerHitsSoft17 != nil {
		rules.DealerHitsSoft17 = *r.DealerHitsSoft17
	}
	if r.AutoStandOn != 0 {
		rules.AutoStandOn = r.AutoStandOn
	}
	if r.StandOn21 != nil {
		rules.StandOn21 = *r.StandOn21
	}

	var err error
	if r.BlackjackPays != "" {
		if rules.BlackjackPays, err = decimal.NewFromString(r.BlackjackPays); err != nil {
			return rules, fmt.Errorf("rules: invalid blackjack_pays %q", r.BlackjackPays)
		}
	}
	if r.MinBet != "" {
		if rules.MinBet, err = decimal.NewFromString(r.MinBet); err != nil {
			return rules, fmt.Errorf("rules: invalid min_bet %q", r.MinBet)
		}
	}
	if r.MaxBet != "" {
		if rules.MaxBet, err = decimal.NewFromString(r.MaxBet); err != nil {
			return rules, fmt.Errorf("rules: invalid max_bet %q", r.MaxBet)
		}
	}

	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("rules: %w", err)
	}
	return rules, nil
}

// StartingCredits returns the free-play starting balance
func (c *Config) StartingCredits() decimal.Decimal {
	credits, err := decimal.NewFromString(c.Settlement.StartingCredits)
	if err != nil {
		return decimal.Zero
	}
	return credits
}

// RelayDurations are the parsed relay timings. Zero means client default.
type RelayDurations struct {
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// Durations parses the relay timing settings
func (r *RelaySettings) Durations() RelayDurations {
	d, _ := r.durations()
	return d
}

func (r *RelaySettings) durations() (RelayDurations, error) {
	var d RelayDurations
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"retry_delay", r.RetryDelay, &d.RetryDelay},
		{"request_timeout", r.RequestTimeout, &d.RequestTimeout},
		{"poll_interval", r.PollInterval, &d.PollInterval},
		{"confirm_timeout", r.ConfirmTimeout, &d.ConfirmTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil || v < 0 {
			return d, fmt.Errorf("relay %s: invalid duration %q", f.name, f.raw)
		}
		*f.dst = v
	}
	return d, nil
}
