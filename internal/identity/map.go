// Package identity resolves provider-native asset variants to canonical
// identities. The base mapping ships as a YAML file; operator overrides
// layered from Postgres win over the file.
package identity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"coinlake/internal/record"
)

// unknownRank sorts unmapped variants after every configured one.
const unknownRank = 1 << 20

// Variant is one provider-native listing of a canonical asset.
type Variant struct {
	ID   string `yaml:"id"`
	Rank int    `yaml:"rank"`
}

// Asset groups the variants of one canonical identity.
type Asset struct {
	CanonicalID string    `yaml:"canonical_id"`
	Variants    []Variant `yaml:"variants"`
}

type mapFile struct {
	Assets []Asset `yaml:"assets"`
}

type mapping struct {
	canonical string
	rank      int
}

// Map answers variant lookups. It is built once at startup and read-only
// afterwards, so concurrent readers need no locking.
type Map struct {
	byVariant map[string]mapping
}

// NewMap builds a Map from asset definitions. Duplicate variant entries
// are an error; a variant cannot belong to two canonical assets.
func NewMap(assets []Asset) (*Map, error) {
	m := &Map{byVariant: make(map[string]mapping)}
	for _, asset := range assets {
		canonical := strings.TrimSpace(asset.CanonicalID)
		if canonical == "" {
			return nil, fmt.Errorf("identity: asset with empty canonical_id")
		}
		for _, variant := range asset.Variants {
			id := strings.TrimSpace(variant.ID)
			if id == "" {
				return nil, fmt.Errorf("identity: asset %s: variant with empty id", canonical)
			}
			if prev, ok := m.byVariant[id]; ok {
				return nil, fmt.Errorf("identity: variant %s mapped to both %s and %s", id, prev.canonical, canonical)
			}
			m.byVariant[id] = mapping{canonical: canonical, rank: variant.Rank}
		}
	}
	return m, nil
}

// LoadFile reads the identity map from a YAML file.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}
	var file mapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("identity: unmarshal %s: %w", path, err)
	}
	return NewMap(file.Assets)
}

// CanonicalID resolves a variant. Unknown variants report ok=false and
// flow through pipelines under their native identifier.
func (m *Map) CanonicalID(variantID string) (string, bool) {
	entry, ok := m.byVariant[variantID]
	if !ok {
		return "", false
	}
	return entry.canonical, true
}

// Rank returns the priority rank for a variant, lower meaning more
// authoritative. Unknown variants rank last.
func (m *Map) Rank(variantID string) int {
	if entry, ok := m.byVariant[variantID]; ok {
		return entry.rank
	}
	return unknownRank
}

// Annotate stamps the canonical identity onto each row in place. Rows for
// unmapped variants are left untouched.
func (m *Map) Annotate(rows []record.TimeSeries) {
	for i := range rows {
		if canonical, ok := m.CanonicalID(rows[i].VariantID); ok {
			rows[i].CanonicalID = canonical
		}
	}
}

// Override rebinds one variant, replacing whatever the base file said.
type Override struct {
	VariantID   string
	CanonicalID string
	Rank        int
}

// ApplyOverrides layers operator overrides on top of the base mapping.
// An override with an empty canonical identity unmaps the variant.
func (m *Map) ApplyOverrides(overrides []Override) {
	for _, o := range overrides {
		id := strings.TrimSpace(o.VariantID)
		if id == "" {
			continue
		}
		canonical := strings.TrimSpace(o.CanonicalID)
		if canonical == "" {
			delete(m.byVariant, id)
			continue
		}
		m.byVariant[id] = mapping{canonical: canonical, rank: o.Rank}
	}
}

// Len reports how many variants are mapped.
func (m *Map) Len() int { return len(m.byVariant) }
