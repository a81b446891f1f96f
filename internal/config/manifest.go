package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// manifestDocument is the on-disk shape of a precache manifest:
//
//	precache:
//	  - /
//	  - /index.html
type manifestDocument struct {
	Precache []string `koanf:"precache"`
}

// LoadManifest reads the precache asset list from a YAML, JSON or TOML file.
func LoadManifest(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: manifest file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config: manifest file %s: expected a file, found directory", path)
	}
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("config: load manifest from %s: %w", path, err)
	}
	var doc manifestDocument
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("config: decode manifest from %s: %w", path, err)
	}

	assets := make([]string, 0, len(doc.Precache))
	seen := make(map[string]struct{}, len(doc.Precache))
	for i, asset := range doc.Precache {
		asset = strings.TrimSpace(asset)
		if !strings.HasPrefix(asset, "/") {
			return nil, fmt.Errorf("config: manifest %s entry %d must be an absolute path: %q", path, i, asset)
		}
		if _, dup := seen[asset]; dup {
			continue
		}
		seen[asset] = struct{}{}
		assets = append(assets, asset)
	}
	return assets, nil
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension %s", ext)
	}
}
