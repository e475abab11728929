package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds every path and business list the pipelines need. It is built
// once at process start and passed explicitly into each component; no package
// keeps ambient global state.
type Config struct {
	// Data-lake layout (medallion: raw -> silver -> gold).
	RawRoot    string `json:"raw_root"`
	SilverRoot string `json:"silver_root"`
	GoldRoot   string `json:"gold_root"`

	// Audit database for run reports.
	AuditDBPath string `json:"audit_db_path"`

	// Per-pipeline raw source directories, keyed by pipeline name.
	Sources map[string]string `json:"sources"`

	// File reading.
	ReadWorkers int `json:"read_workers"`

	// Fuzzy matching.
	FuzzyThreshold int `json:"fuzzy_threshold"`
	// Reference year for month+quarter filename tokens without an explicit year.
	ReferenceYear int `json:"reference_year"`

	// Name-noise keywords that mark a roster entry as corporate/agent/office
	// rather than a person. Matched on word boundaries, case-insensitive.
	NonHumanKeywords []string `json:"non_human_keywords"`

	// NOC operator usernames and attention groups for ticket ownership
	// classification.
	NOCUsers  []string `json:"noc_users"`
	NOCGroups []string `json:"noc_groups"`

	// Seller whitelists for the sales channel chain.
	OfficeSellers []string `json:"office_sellers"`
	OwnSellers    []string `json:"own_sellers"`

	// Ticket solutions excluded from fault counting.
	ExcludedSolutions []string `json:"excluded_solutions"`
}

// Default returns a configuration with the production defaults. Paths are
// rooted under dataRoot; callers override individual fields afterwards.
func Default(dataRoot string) *Config {
	return &Config{
		RawRoot:        filepath.Join(dataRoot, "raw_data"),
		SilverRoot:     filepath.Join(dataRoot, "silver_data"),
		GoldRoot:       filepath.Join(dataRoot, "gold_data"),
		AuditDBPath:    filepath.Join(dataRoot, "etl_audit.db"),
		Sources:        map[string]string{},
		ReadWorkers:    4,
		FuzzyThreshold: 95,
		ReferenceYear:  2026,
		NonHumanKeywords: []string{
			"INTERCOM", "INVERSIONES", "SOLUCIONES",
			"TECNOLOGIA", "TELECOMUNICACIONES", "MULTISERVICIOS",
			"COMERCIALIZADORA", "CORPORACION", "SISTEMAS",
			"ASOCIADOS", "CONSORCIO", "GRUPO",
			"AGENTE", "ALIADO", "AUTORIZADO",
			"OFICINA", "SUCURSAL", "CANAL", "TAQUILLA",
			"OFI", "OFIC", "OFC",
		},
		NOCUsers: []string{
			"GFARFAN", "JVELASQUEZ", "JOLUGO", "KUSEA", "SLOPEZ",
			"EDESPINOZA", "SANDYJIM", "JOCASTILLO", "JESUSGARCIA",
			"DFUENTES", "JOCANTO", "IXMONTILLA", "OMTRUJILLO",
			"LLZERPA", "LUIJIMENEZ",
		},
		NOCGroups: []string{
			"GT MONITOREO", "GT NOC TRANSPORTE", "GT NOC ACCESO",
		},
		OfficeSellers: []string{
			"angelica angulo ofic aragua",
			"marianyeli acosta rodriguez atc ofic turmero aragua",
			"oficina bejuma",
			"gisel haideen becerra gimenez",
		},
		OwnSellers: []string{
			"carlos alberto pereira",
			"carlos javier perez cribas",
			"maria alejandra marquez rivas",
		},
		ExcludedSolutions: []string{
			"CAMBIO DE CLAVE", "CLIENTE SOLICITO REEMBOLSO",
			"LLAMADAS DE AGENDAMIENTO", "ORDEN REPETIDA",
			"CONSULTA DE SALDO", "ORDEN MAL GENERADA",
		},
	}
}

// Load reads a JSON configuration file and applies environment overrides.
// A missing file is not an error: defaults rooted at TELCOETL_DATA (or the
// current directory) are returned instead.
func Load(path string) (*Config, error) {
	dataRoot := os.Getenv("TELCOETL_DATA")
	if dataRoot == "" {
		dataRoot = "."
	}
	cfg := Default(dataRoot)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELCOETL_GOLD"); v != "" {
		cfg.GoldRoot = v
	}
	if v := os.Getenv("TELCOETL_SILVER"); v != "" {
		cfg.SilverRoot = v
	}
	if v := os.Getenv("TELCOETL_RAW"); v != "" {
		cfg.RawRoot = v
	}
	if v := os.Getenv("TELCOETL_AUDIT_DB"); v != "" {
		cfg.AuditDBPath = v
	}
	if v := os.Getenv("TELCOETL_READ_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ReadWorkers = n
		}
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ReadWorkers <= 0 {
		return fmt.Errorf("read_workers must be positive, got %d", c.ReadWorkers)
	}
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 100 {
		return fmt.Errorf("fuzzy_threshold must be within [0,100], got %d", c.FuzzyThreshold)
	}
	if c.GoldRoot == "" || c.SilverRoot == "" {
		return fmt.Errorf("gold_root and silver_root are required")
	}
	return nil
}

// SourceDir returns the raw directory configured for a pipeline, falling back
// to <raw_root>/<name> when no explicit entry exists.
func (c *Config) SourceDir(pipeline string) string {
	if dir, ok := c.Sources[pipeline]; ok && dir != "" {
		return dir
	}
	return filepath.Join(c.RawRoot, pipeline)
}

// GoldPath returns the path of a gold snapshot file.
func (c *Config) GoldPath(name string) string {
	return filepath.Join(c.GoldRoot, name)
}

// SilverPath returns the path of a silver snapshot file.
func (c *Config) SilverPath(name string) string {
	return filepath.Join(c.SilverRoot, name)
}
