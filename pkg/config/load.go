package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/grafana/pewpewgo/pkg/template"
)

// Load reads and fully resolves a config file from disk: decode Raw,
// resolve vars, compile and resolve every template field, compile every
// query.
func Load(path string) (*Resolved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return LoadBytes(data)
}

// LoadBytes decodes and resolves an in-memory config document, using the
// process environment for ${e:…} lookups.
func LoadBytes(data []byte) (*Resolved, error) {
	return LoadBytesWithEnv(data, osEnvLookup)
}

// LoadBytesWithEnv is LoadBytes with an injectable ${e:…} lookup, so tests
// don't depend on process environment state.
func LoadBytesWithEnv(data []byte, env EnvLookup) (*Resolved, error) {
	var raw Raw
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	rt, err := template.NewRuntime("")
	if err != nil {
		return nil, fmt.Errorf("config: starting vars runtime: %w", err)
	}
	defer rt.Close()

	return Resolve(&raw, env, rt)
}

func osEnvLookup(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("config: environment variable %q is not set", name)
	}
	return v, nil
}
