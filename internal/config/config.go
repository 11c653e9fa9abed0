// Package config loads service settings from an optional .env file and the
// process environment. Command-line flags in cmd/* override these values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-sankey/internal/sankey"
	"github.com/joho/godotenv"
)

// Config holds everything the API server and CLI need.
type Config struct {
	Port     string
	LogLevel string

	// Source is the default record source URI, e.g. "data/jmu.json" or
	// "gs://budgets/jmu.json".
	Source string
	Hub    string

	// AllowedSources are the other sources a request may name.
	AllowedSources []string

	GCSBucket   string
	BQProject   string
	BQDataset   string
	DatabaseURL string

	Diagram sankey.DiagramOptions
}

// Load reads envFile (if it exists) into the environment and builds a Config.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a variable lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:        valueOr(getenv("PORT"), "8080"),
		LogLevel:    valueOr(getenv("LOG_LEVEL"), "info"),
		Source:      getenv("SANKEY_SOURCE"),
		Hub:         valueOr(getenv("SANKEY_HUB"), sankey.DefaultHub),
		GCSBucket:   getenv("GCS_BUCKET"),
		BQProject:   getenv("BQ_PROJECT"),
		BQDataset:   valueOr(getenv("BQ_DATASET"), "finance"),
		DatabaseURL: getenv("DATABASE_URL"),
		Diagram:     sankey.DefaultDiagramOptions(),
	}
	cfg.AllowedSources = splitList(getenv("SANKEY_ALLOWED_SOURCES"))

	d := &cfg.Diagram
	var err error
	if d.Width, err = intOr(getenv, "SANKEY_WIDTH", d.Width); err != nil {
		return nil, err
	}
	if d.Height, err = intOr(getenv, "SANKEY_HEIGHT", d.Height); err != nil {
		return nil, err
	}
	if d.NodeWidth, err = intOr(getenv, "SANKEY_NODE_WIDTH", d.NodeWidth); err != nil {
		return nil, err
	}
	if d.NodePadding, err = intOr(getenv, "SANKEY_NODE_PADDING", d.NodePadding); err != nil {
		return nil, err
	}
	d.NodeAlign = valueOr(getenv("SANKEY_NODE_ALIGN"), d.NodeAlign)
	d.LinkColor = valueOr(getenv("SANKEY_LINK_COLOR"), d.LinkColor)

	// The extent is always derived from the canvas size.
	d.Extent = [2][2]int{}
	cfg.Diagram = d.Normalize()
	if err := cfg.Diagram.Validate(); err != nil {
		return nil, fmt.Errorf("config: diagram: %w", err)
	}

	return cfg, nil
}

func valueOr(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// splitList splits a comma-separated value, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intOr(getenv func(string) string, key string, def int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}
