// Package config is for app wide settings that are unmarshalled
// from Viper (see: /cmd)
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// PipelineConfig holds settings for the stage engine itself.
type PipelineConfig struct {
	// what to do when a stage fails: "continue" or "halt"
	OnError string `mapstructure:"on-error"`

	// the number of wells processed concurrently during
	// assembly and homology search
	Workers int `mapstructure:"workers"`

	// filename prefix for checkpoint files
	CheckpointPrefix string `mapstructure:"checkpoint-prefix"`
}

// DataConfig points at the static run inputs.
type DataConfig struct {
	// forward and reverse tag FASTA files (passed to cutadapt -g/-G)
	ForwardTag string `mapstructure:"forward-tag"`
	ReverseTag string `mapstructure:"reverse-tag"`

	// forward and reverse primer FASTA files
	ForwardPrimer string `mapstructure:"forward-primer"`
	ReversePrimer string `mapstructure:"reverse-primer"`

	// path to cells.json, the well -> barcode pair table
	CellsJSON string `mapstructure:"cells-json"`

	// root output directory; each run writes into a timestamped
	// subdirectory of this
	Destination string `mapstructure:"destination"`

	// where fastp HTML reports are copied for serving
	ReportDest string `mapstructure:"report-dest"`

	// Go reference-time format for the run directory name
	TimeFormat string `mapstructure:"time-format"`
}

// ToolConfig carries extra command line parameters handed verbatim
// to the external binaries.
type ToolConfig struct {
	Cutadapt []string `mapstructure:"cutadapt"`
	Fastp    []string `mapstructure:"fastp"`
	Megahit  []string `mapstructure:"megahit"`
	Skesa    []string `mapstructure:"skesa"`
	Spades   []string `mapstructure:"spades"`

	// blastn params; at minimum ["-db", "path/to/db"]
	Blastn []string `mapstructure:"blastn"`
}

// Config is the root-level settings struct and is a mix of settings
// available in settings.yaml and those from the command line.
type Config struct {
	// which assembly engine to run: megahit, skesa or spades
	Assembler string `mapstructure:"assembler"`

	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Data     DataConfig     `mapstructure:"data"`
	Tools    ToolConfig     `mapstructure:"tools"`

	// an optional row filter applied to the final report,
	// eg "pident >= 97"
	Filter string `mapstructure:"filter"`
}

// SetDefaults registers the default value of every setting with viper.
// Called once from cmd before flags are bound so that a missing
// settings.yaml still yields a runnable config.
func SetDefaults() {
	viper.SetDefault("assembler", "megahit")

	viper.SetDefault("pipeline.on-error", "continue")
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.checkpoint-prefix", "allin")

	viper.SetDefault("data.forward-tag", "tags/forward.fasta")
	viper.SetDefault("data.reverse-tag", "tags/reverse.fasta")
	viper.SetDefault("data.forward-primer", "primers/forward.fasta")
	viper.SetDefault("data.reverse-primer", "primers/reverse.fasta")
	viper.SetDefault("data.cells-json", "cells.json")
	viper.SetDefault("data.destination", "data")
	viper.SetDefault("data.report-dest", "reports")
	viper.SetDefault("data.time-format", "2006_0102_1504")

	viper.SetDefault("tools.cutadapt", []string{})
	viper.SetDefault("tools.fastp", []string{})
	viper.SetDefault("tools.megahit", []string{})
	viper.SetDefault("tools.skesa", []string{})
	viper.SetDefault("tools.spades", []string{})
	viper.SetDefault("tools.blastn", []string{})
}

// Load merges a user settings.yaml into viper. An empty path is not an
// error; the defaults simply stand. A malformed or missing file is
// fatal at startup.
func Load(path string) error {
	if path == "" {
		return nil
	}

	viper.SetConfigFile(path)
	if err := viper.MergeInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read settings from %s", path)
	}

	return nil
}

// New returns a new Config struct populated by Viper settings
// (either from the local settings.yaml and/or command line arguments).
func New() (*Config, error) {
	var c Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "unable to decode settings into struct")
	}

	if c.Pipeline.OnError != "continue" && c.Pipeline.OnError != "halt" {
		return nil, errors.Errorf("pipeline.on-error must be \"continue\" or \"halt\", got %q", c.Pipeline.OnError)
	}

	if c.Pipeline.Workers < 1 {
		c.Pipeline.Workers = 1
	}

	return &c, nil
}

// EngineParams returns the extra parameter list for the named
// assembly engine.
func (c *Config) EngineParams(engine string) []string {
	switch engine {
	case "megahit":
		return c.Tools.Megahit
	case "skesa":
		return c.Tools.Skesa
	case "spades":
		return c.Tools.Spades
	}
	return nil
}
