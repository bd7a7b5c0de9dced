package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads configuration from a file and environment variables.
// Priority: ENV > file > defaults (via env-default tags).
//
// The file is CONFIG_PATH when set; otherwise ./config.yaml, then ./config.json,
// whichever exists first. With no file, configuration comes from ENV + defaults.
// A .json file uses the flat legacy format (see legacyFile).
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	return LoadFile(path, path != "")
}

// LoadFile is Load with an explicit path. When explicit is false and path is empty,
// the default locations are probed.
func LoadFile(path string, explicit bool) (*Config, error) {
	cfg := newConfig()

	if path == "" && !explicit {
		for _, candidate := range []string{"./config.yaml", "./config.json"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	switch {
	case path == "":
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	case strings.EqualFold(filepath.Ext(path), ".json"):
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
		if err := applyLegacyJSON(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	default:
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// legacyFile is the flat config.json format of earlier releases.
// mongoDatabaseUrl is accepted as an alias of storageConnectionUrl.
type legacyFile struct {
	StorageConnectionURL *string `json:"storageConnectionUrl"`
	MongoDatabaseURL     *string `json:"mongoDatabaseUrl"`
	UseSystemProxy       *bool   `json:"useSystemProxy"`
	Database             *string `json:"database"`
	Locales              *string `json:"locales"`
}

// applyLegacyJSON overlays legacy keys on cfg unless the matching env var is set.
func applyLegacyJSON(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var lf legacyFile
	if err := json.Unmarshal(b, &lf); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	storageURL := lf.StorageConnectionURL
	if storageURL == nil {
		storageURL = lf.MongoDatabaseURL
	}

	overlayString(&cfg.Storage.URL, storageURL, "STORAGE_URL")
	overlayString(&cfg.Storage.Database, lf.Database, "STORAGE_DATABASE")
	overlayString(&cfg.Ingest.LocalesRaw, lf.Locales, "INGEST_LOCALES")
	if lf.UseSystemProxy != nil && !envSet("HTTP_USE_SYSTEM_PROXY") {
		cfg.HTTP.UseSystemProxy = *lf.UseSystemProxy
	}
	return nil
}

func overlayString(dst *string, v *string, env string) {
	if v == nil || envSet(env) {
		return
	}
	*dst = *v
}

func envSet(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}
