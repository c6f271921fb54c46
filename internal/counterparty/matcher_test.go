package counterparty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Rossi Mario S.R.L.", "ROSSI MARIO"},
		{"Caffè Nerò S.p.A.", "CAFFE NERO"},
		{"  verdi   snc ", "VERDI"},
		{"Mario D'Angelo", "MARIO D ANGELO"},
		{"S.p.A.", "SPA"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestMatcher_Matches(t *testing.T) {
	aliases := NewAliasTable("test", map[string][]string{
		"TELECOM ITALIA": {"TIM"},
	})
	m := NewMatcher(aliases)

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"legal suffix ignored", "ROSSI MARIO SRL", "Rossi Mario", true},
		{"alias", "TIM", "Telecom Italia S.p.A.", true},
		{"containment", "AUTOTRASPORTI", "AUTOTRASPORTIVERDI", true},
		{"short containment rejected", "BAR", "BAR SPORT", false},
		{"same first word", "ACME TRADING", "ACME LOGISTICA", true},
		{"same first two words", "LA ROSA FIORI", "LA ROSA PIANTE", true},
		{"short first word only", "LA ROSA", "LA PERLA", false},
		{"shared significant token", "STUDIO CONTABILE VERDI", "VERDI GIUSEPPE", true},
		{"different", "ROSSI MARIO", "BIANCHI LUCA", false},
		{"empty", "", "ROSSI", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Matches(tt.a, tt.b))
		})
	}
}

func TestMatcher_AliasRequired(t *testing.T) {
	assert.False(t, NewMatcher(nil).Matches("TIM", "Telecom Italia"))
}

func TestMatcher_Symmetric(t *testing.T) {
	m := NewMatcher(NewAliasTable("test", map[string][]string{"TELECOM ITALIA": {"TIM"}}))
	names := []string{
		"ROSSI MARIO SRL", "Rossi Mario", "TIM", "Telecom Italia", "BAR", "BAR SPORT",
		"ACME TRADING", "ACME LOGISTICA", "LA ROSA FIORI", "LA PERLA", "VERDI GIUSEPPE",
		"STUDIO CONTABILE VERDI", "Caffè Nerò", "CAFFE NERO SNC", "", "AUTOTRASPORTI",
	}
	for _, a := range names {
		for _, b := range names {
			assert.Equal(t, m.Matches(a, b), m.Matches(b, a), "Matches(%q, %q)", a, b)
			assert.Equal(t, m.Similarity(a, b), m.Similarity(b, a), "Similarity(%q, %q)", a, b)
		}
	}
}

func TestMatcher_Similarity(t *testing.T) {
	m := NewMatcher(nil)
	assert.Equal(t, 1.0, m.Similarity("Rossi Mario", "ROSSI MARIO SRL"))
	assert.Equal(t, 1.0, m.Similarity("MARIO ROSSI", "ROSSI MARIO"))
	assert.Equal(t, 0.0, m.Similarity("ROSSI", "BIANCHI"))
	assert.Equal(t, 0.0, m.Similarity("", "BIANCHI"))

	partial := m.Similarity("ROSSI MARIO", "ROSSI LUCA")
	assert.Greater(t, partial, 0.5)
	assert.Less(t, partial, 1.0)
}

func TestLoadAliases(t *testing.T) {
	table, err := LoadAliases("testdata/aliases.yaml")
	require.NoError(t, err)
	assert.Equal(t, "2024-06", table.Version)
	assert.Equal(t, "TELECOM ITALIA", table.Canonical("TIM"))
	assert.Equal(t, "ENEL ENERGIA", table.Canonical(Normalize("Enel Servizio Elettrico")))
	assert.Equal(t, "SCONOSCIUTO", table.Canonical("SCONOSCIUTO"))

	empty, err := LoadAliases("")
	require.NoError(t, err)
	assert.Zero(t, empty.Len())

	_, err = LoadAliases("testdata/missing.yaml")
	assert.Error(t, err)

	_, err = ParseAliases([]byte("aliases: [unterminated"))
	assert.Error(t, err)
}
