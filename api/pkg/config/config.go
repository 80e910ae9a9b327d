package config

import (
	"fmt"
	"time"

	"github.com/bakeops/bakeops/api/pkg/types"
	"github.com/kelseyhightower/envconfig"
)

type ServerConfig struct {
	BusinessHours BusinessHours
	Ovens         Ovens
	Planner       Planner
	Suggestions   Suggestions
	Simulation    Simulation
	Catering      Catering
	Store         Store
	PubSub        PubSub
	WebServer     WebServer
}

func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	err := envconfig.Process("", &cfg)
	if err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the scheduling math cannot work with.
// Both business-hour bounds must sit on the 20 minute grid because every
// batch start is derived from them.
func (c *ServerConfig) Validate() error {
	if c.BusinessHours.StartMinutes < 0 || c.BusinessHours.EndMinutes > 24*60 {
		return fmt.Errorf("business hours %d..%d outside a single day", c.BusinessHours.StartMinutes, c.BusinessHours.EndMinutes)
	}
	if c.BusinessHours.StartMinutes >= c.BusinessHours.EndMinutes {
		return fmt.Errorf("business hours start %d must be before end %d", c.BusinessHours.StartMinutes, c.BusinessHours.EndMinutes)
	}
	if !types.OnGrid(c.BusinessHours.StartMinutes) || !types.OnGrid(c.BusinessHours.EndMinutes) {
		return fmt.Errorf("business hours %d..%d must be multiples of %d minutes", c.BusinessHours.StartMinutes, c.BusinessHours.EndMinutes, types.GridMinutes)
	}
	if c.Ovens.OvenCount < 1 || c.Ovens.RacksPerOven < 1 {
		return fmt.Errorf("oven config needs at least one oven and one rack per oven")
	}
	return nil
}

type BusinessHours struct {
	StartMinutes int `envconfig:"BUSINESS_HOURS_START_MINUTES" default:"360" description:"Opening time in minutes since midnight."`
	EndMinutes   int `envconfig:"BUSINESS_HOURS_END_MINUTES" default:"1020" description:"Closing time in minutes since midnight."`
}

func (b BusinessHours) ToTypes() types.BusinessHours {
	return types.BusinessHours{
		StartMinutes: b.StartMinutes,
		EndMinutes:   b.EndMinutes,
	}
}

type Ovens struct {
	OvenCount    int `envconfig:"OVEN_COUNT" default:"2"`
	RacksPerOven int `envconfig:"RACKS_PER_OVEN" default:"6"`
}

func (o Ovens) ToTypes() types.OvenConfig {
	return types.OvenConfig{
		OvenCount:    o.OvenCount,
		RacksPerOven: o.RacksPerOven,
	}
}

type Planner struct {
	// findSlotAt probes this many later grid slots before giving up.
	MaxSlotAdvances int `envconfig:"PLANNER_MAX_SLOT_ADVANCES" default:"5"`
}

type Suggestions struct {
	ConfidenceTargetUnits    int     `envconfig:"CONFIDENCE_TARGET_UNITS" default:"50" description:"Processed units at which predictive confidence reaches 100."`
	MinShortfallUnits        int     `envconfig:"SUGGESTION_MIN_SHORTFALL_UNITS" default:"5"`
	MinConfidencePercent     int     `envconfig:"SUGGESTION_MIN_CONFIDENCE_PERCENT" default:"50"`
	PredictiveMinLeadMinutes int     `envconfig:"PREDICTIVE_MIN_LEAD_MINUTES" default:"60"`
	PredictiveMaxLeadMinutes int     `envconfig:"PREDICTIVE_MAX_LEAD_MINUTES" default:"300"`
	EndOfDayCutoffMinutes    int     `envconfig:"SUGGESTION_END_OF_DAY_CUTOFF_MINUTES" default:"60" description:"No suggested batch may become available inside this window before close."`
	ReactiveWindowMinutes    int     `envconfig:"REACTIVE_WINDOW_MINUTES" default:"60"`
	ReactiveMinObservedUnits int     `envconfig:"REACTIVE_MIN_OBSERVED_UNITS" default:"10"`
	ReactiveMinRate          float64 `envconfig:"REACTIVE_MIN_CONSUMPTION_RATE" default:"0.1"`
	ReactiveDepletionMinutes int     `envconfig:"REACTIVE_DEPLETION_THRESHOLD_MINUTES" default:"90"`
	ReactiveBufferMinutes    int     `envconfig:"REACTIVE_TARGET_BUFFER_MINUTES" default:"180"`
	ReactiveConfidenceTarget int     `envconfig:"REACTIVE_CONFIDENCE_TARGET_UNITS" default:"30"`
}

type Simulation struct {
	DriverTick         time.Duration `envconfig:"SIMULATION_DRIVER_TICK" default:"100ms" description:"How often the driver advances running simulations."`
	CleanupInterval    time.Duration `envconfig:"SIMULATION_CLEANUP_INTERVAL" default:"10m"`
	TTL                time.Duration `envconfig:"SIMULATION_TTL" default:"1h" description:"Stopped or completed simulations older than this are evicted."`
	AdvanceConcurrency int           `envconfig:"SIMULATION_ADVANCE_CONCURRENCY" default:"4" description:"How many simulations one driver tick may advance in parallel."`
	MirrorAttempts     int           `envconfig:"SIMULATION_MIRROR_ATTEMPTS" default:"3" description:"Retry attempts for best-effort schedule mirror writes."`
}

type Catering struct {
	MinLeadMinutes    int `envconfig:"CATERING_MIN_LEAD_MINUTES" default:"120"`
	MaxStaggerMinutes int `envconfig:"CATERING_MAX_STAGGER_MINUTES" default:"120" description:"How far before the required slot the allocator may stagger extra batches."`
}

type Store struct {
	Host     string `envconfig:"POSTGRES_HOST" description:"The host to connect to the postgres server."`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432" description:"The port to connect to the postgres server."`
	Database string `envconfig:"POSTGRES_DATABASE" default:"bakeops" description:"The database to connect to the postgres server."`
	Username string `envconfig:"POSTGRES_USER" description:"The username to connect to the postgres server."`
	Password string `envconfig:"POSTGRES_PASSWORD" description:"The password to connect to the postgres server."`
	SSL      bool   `envconfig:"POSTGRES_SSL" default:"false"`
	Schema   string `envconfig:"POSTGRES_SCHEMA"` // Defaults to public

	AutoMigrate     bool          `envconfig:"DATABASE_AUTO_MIGRATE" default:"true" description:"Should we automatically run the migrations?"`
	MaxConns        int           `envconfig:"DATABASE_MAX_CONNS" default:"50"`
	IdleConns       int           `envconfig:"DATABASE_IDLE_CONNS" default:"25"`
	MaxConnLifetime time.Duration `envconfig:"DATABASE_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"DATABASE_MAX_CONN_IDLE_TIME" default:"1m"`

	SeedSpecs bool `envconfig:"DATABASE_SEED_SPECS" default:"true" description:"Should we seed the demo bake specs?"`
}

type PubSub struct {
	Provider string `envconfig:"PUBSUB_PROVIDER" default:"nats" description:"The pubsub provider to use (nats or inmemory)."`
	Server   struct {
		Host       string `envconfig:"NATS_SERVER_HOST" default:"127.0.0.1" description:"The host to bind the NATS server to."`
		Port       int    `envconfig:"NATS_SERVER_PORT" default:"4222" description:"The port to bind the NATS server to."`
		Token      string `envconfig:"NATS_SERVER_TOKEN" description:"The authentication token for the NATS server."`
		MaxPayload int    `envconfig:"NATS_SERVER_MAX_PAYLOAD" default:"33554432" description:"The maximum payload size in bytes (default 32MB)."`
	}
}

type WebServer struct {
	URL  string `envconfig:"SERVER_URL" description:"The URL the api server is listening on."`
	Host string `envconfig:"SERVER_HOST" default:"0.0.0.0" description:"The host to bind the api server to."`
	Port int    `envconfig:"SERVER_PORT" default:"8080" description:""`
}
