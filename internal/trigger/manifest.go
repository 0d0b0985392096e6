package trigger

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const ManifestSchemaV1 = "rebit.functions.v1"

type Manifest struct {
	Schema    string         `yaml:"schema"`
	Functions []FunctionSpec `yaml:"functions"`
}

type FunctionSpec struct {
	Name     string    `yaml:"name"`
	Target   string    `yaml:"target,omitempty"`
	Bindings []Binding `yaml:"bindings"`
}

func ParseManifest(input []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(input))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Schema) != ManifestSchemaV1 {
		return fmt.Errorf("manifest.schema must be %q", ManifestSchemaV1)
	}
	if len(m.Functions) == 0 {
		return errors.New("manifest.functions must be non-empty")
	}
	for i, fn := range m.Functions {
		if strings.TrimSpace(fn.Name) == "" {
			return fmt.Errorf("manifest.functions[%d].name is required", i)
		}
		if strings.ContainsAny(fn.Name, "/ ") {
			return fmt.Errorf("manifest.functions[%d].name must not contain spaces or '/': %q", i, fn.Name)
		}
		if len(fn.Bindings) == 0 {
			return fmt.Errorf("manifest.functions[%d].bindings must be non-empty", i)
		}
		for j, b := range fn.Bindings {
			if strings.TrimSpace(b.Type) == "" {
				return fmt.Errorf("manifest.functions[%d].bindings[%d].type is required", i, j)
			}
		}
	}
	return nil
}

// Discover turns the manifest into a catalog. Each function takes the kind
// of its first input binding claimed by a registered plugin; functions with
// none are kept as Unknown. Duplicate names resolve to the first entry.
func Discover(m Manifest, reg *Registry, logger *slog.Logger) (*Catalog, error) {
	functions := make([]Function, 0, len(m.Functions))
	for _, spec := range m.Functions {
		fn := Function{
			Name:     strings.TrimSpace(spec.Name),
			Kind:     Unknown,
			Bindings: append([]Binding(nil), spec.Bindings...),
			Target:   strings.TrimSpace(spec.Target),
		}
		kind, binding, ok := reg.ResolveBindings(spec.Bindings)
		if ok {
			meta, err := reg.Describe(binding)
			if err != nil {
				return nil, fmt.Errorf("function %s: %w", fn.Name, err)
			}
			fn.Kind = kind
			fn.Metadata = meta
		} else if logger != nil {
			logger.Warn("function has no supported trigger binding", "function", fn.Name)
		}
		functions = append(functions, fn)
	}
	return NewCatalog(logger, functions...), nil
}
