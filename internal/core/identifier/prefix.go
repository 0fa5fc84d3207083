package identifier

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPrefixes maps entity types to their ID prefix.
// Several entity types may share a prefix (aliases).
var DefaultPrefixes = map[string]string{
	"cliente":      "CL",
	"cita":         "CT",
	"servicio":     "SV",
	"producto":     "PR",
	"estilista":    "ES",
	"profesional":  "ES",
	"factura":      "FC",
	"venta":        "VT",
	"pago":         "PG",
	"inventario":   "IN",
	"pedido":       "PD",
	"movimiento":   "MV",
	"proveedor":    "PV",
	"sede":         "SD",
	"local":        "SD",
	"promocion":    "PM",
	"descuento":    "DC",
	"categoria":    "CG",
	"nota":         "NT",
	"recordatorio": "RC",
	"notificacion": "NF",
	"reporte":      "RP",
	"usuario":      "US",
}

var prefixPattern = regexp.MustCompile(`^[A-Z]{2,3}$`)

// PrefixTable resolves entity types to prefixes. Immutable after construction.
type PrefixTable struct {
	byEntity map[string]string
	prefixes map[string]struct{}
}

// NewPrefixTable builds a table from entity -> prefix entries.
// Entity names are matched case-insensitively.
func NewPrefixTable(entries map[string]string) (*PrefixTable, error) {
	t := &PrefixTable{
		byEntity: make(map[string]string, len(entries)),
		prefixes: make(map[string]struct{}),
	}
	for entity, prefix := range entries {
		name := normalizeEntity(entity)
		if name == "" {
			return nil, fmt.Errorf("empty entity type")
		}
		if !prefixPattern.MatchString(prefix) {
			return nil, fmt.Errorf("entity %q: prefix %q must be 2-3 uppercase letters", entity, prefix)
		}
		t.byEntity[name] = prefix
		t.prefixes[prefix] = struct{}{}
	}
	return t, nil
}

// DefaultPrefixTable returns the built-in table.
func DefaultPrefixTable() *PrefixTable {
	t, err := NewPrefixTable(DefaultPrefixes)
	if err != nil {
		panic(err)
	}
	return t
}

type prefixFile struct {
	// Replace drops the built-in table instead of extending it.
	Replace  bool              `yaml:"replace"`
	Prefixes map[string]string `yaml:"prefixes"`
}

// LoadPrefixTable reads a YAML file of the form
//
//	replace: false
//	prefixes:
//	  giftcard: GC
//
// and merges it over DefaultPrefixes unless replace is set.
func LoadPrefixTable(path string) (*PrefixTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prefix file: %w", err)
	}

	var file prefixFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prefix file: %w", err)
	}

	merged := make(map[string]string, len(DefaultPrefixes)+len(file.Prefixes))
	if !file.Replace {
		for k, v := range DefaultPrefixes {
			merged[k] = v
		}
	}
	for k, v := range file.Prefixes {
		merged[normalizeEntity(k)] = v
	}
	return NewPrefixTable(merged)
}

// Resolve returns the prefix of an entity type.
func (t *PrefixTable) Resolve(entityType string) (string, bool) {
	p, ok := t.byEntity[normalizeEntity(entityType)]
	return p, ok
}

// KnownPrefix reports whether any entity type uses prefix.
func (t *PrefixTable) KnownPrefix(prefix string) bool {
	_, ok := t.prefixes[prefix]
	return ok
}

// Entities returns the sorted entity types.
func (t *PrefixTable) Entities() []string {
	out := make([]string, 0, len(t.byEntity))
	for e := range t.byEntity {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Entries returns a copy of the entity -> prefix mapping.
func (t *PrefixTable) Entries() map[string]string {
	out := make(map[string]string, len(t.byEntity))
	for k, v := range t.byEntity {
		out[k] = v
	}
	return out
}

// NormalizeEntity returns the canonical spelling of an entity type.
func NormalizeEntity(entityType string) string {
	return normalizeEntity(entityType)
}

func normalizeEntity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
