package hnsw

import (
	"math"

	"github.com/rs/zerolog"
)

// Default graph parameters
const (
	DefaultM               = 16
	DefaultEfConstruction  = 200
	DefaultEfSearch        = 100
	DefaultInitialCapacity = 1024

	// maxLevelCap bounds node levels for pathological hash values
	maxLevelCap = 16
)

// Config configures graph construction and the manager
type Config struct {
	// M is the maximum number of links per node on layers above 0.
	// Layer 0 allows 2*M.
	M int

	// EfConstruction is the candidate list size used while inserting
	EfConstruction int

	// EfSearch is the candidate list size used while querying
	EfSearch int

	// InitialCapacity is the minimum slot capacity of a freshly built graph
	InitialCapacity int

	// Logger receives build and capacity events. Zero value disables logging.
	Logger zerolog.Logger
}

// DefaultConfig returns the default graph configuration
func DefaultConfig() Config {
	return Config{
		M:               DefaultM,
		EfConstruction:  DefaultEfConstruction,
		EfSearch:        DefaultEfSearch,
		InitialCapacity: DefaultInitialCapacity,
		Logger:          zerolog.Nop(),
	}
}

func (c *Config) setDefaults() {
	if c.M < 2 {
		c.M = DefaultM
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = DefaultEfConstruction
	}
	if c.EfSearch <= 0 {
		c.EfSearch = DefaultEfSearch
	}
	if c.InitialCapacity <= 0 {
		c.InitialCapacity = DefaultInitialCapacity
	}
}

// params holds the subset of Config persisted with the graph
type params struct {
	M              int
	EfConstruction int
	EfSearch       int
}

func (p params) maxConns(layer int) int {
	if layer == 0 {
		return p.M * 2
	}
	return p.M
}

func (p params) levelMul() float64 {
	return 1.0 / math.Log(float64(p.M))
}
