package main

import (
	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
)

// Config drives one check run.
type Config struct {
	// Analyzers picks the relationship analyzers; empty means all.
	Analyzers []string `toml:"analyzers"`
	// ConsistencyModels the history is expected to satisfy.
	ConsistencyModels []string `toml:"consistency-models"`
	// Anomalies to additionally look for.
	Anomalies []string `toml:"anomalies"`
	// AllowedAnomalies never invalidate the verdict.
	AllowedAnomalies []string `toml:"allowed-anomalies"`
	// Workers bounds analysis parallelism.
	Workers int `toml:"workers"`
	// OutputDir receives cycle dumps and SVG visualizations.
	OutputDir string `toml:"output-dir"`
	// Latencies toggles the latency report.
	Latencies bool `toml:"latencies"`
}

var initConfig = Config{
	ConsistencyModels: []string{"strict-serializable"},
	Workers:           4,
	Latencies:         true,
}

// Init gets the default Config.
func Init() *Config {
	return initConfig.Copy()
}

// Load config from file.
func (c *Config) Load(path string) error {
	_, err := toml.DecodeFile(path, c)
	return errors.Trace(err)
}

// Copy Config struct.
func (c *Config) Copy() *Config {
	cp := *c
	return &cp
}
