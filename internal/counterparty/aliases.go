package counterparty

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AliasTable maps spelling variants of a counterparty to one canonical name.
// Keys and variants are stored normalized.
type AliasTable struct {
	Version   string
	canonical map[string]string
}

type aliasFile struct {
	Version string              `yaml:"version"`
	Aliases map[string][]string `yaml:"aliases"`
}

// NewAliasTable builds a table from canonical name -> variants.
func NewAliasTable(version string, aliases map[string][]string) *AliasTable {
	t := &AliasTable{Version: version, canonical: make(map[string]string)}
	for canon, variants := range aliases {
		c := Normalize(canon)
		if c == "" {
			continue
		}
		t.canonical[c] = c
		for _, v := range variants {
			if n := Normalize(v); n != "" {
				t.canonical[n] = c
			}
		}
	}
	return t
}

// ParseAliases reads a YAML alias document:
//
//	version: "2024-06"
//	aliases:
//	  ENEL ENERGIA: [ENEL, ENEL SERVIZIO ELETTRICO]
func ParseAliases(data []byte) (*AliasTable, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse alias table: %w", err)
	}
	return NewAliasTable(f.Version, f.Aliases), nil
}

// LoadAliases reads an alias file. An empty path yields an empty table.
func LoadAliases(path string) (*AliasTable, error) {
	if path == "" {
		return NewAliasTable("", nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias file %s: %w", path, err)
	}
	return ParseAliases(data)
}

// Canonical returns the canonical form of a normalized name, or the name itself.
func (t *AliasTable) Canonical(normalized string) string {
	if t == nil {
		return normalized
	}
	if c, ok := t.canonical[normalized]; ok {
		return c
	}
	return normalized
}

// Len is the number of known spellings, canonical names included.
func (t *AliasTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.canonical)
}
