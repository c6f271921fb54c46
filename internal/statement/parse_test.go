package statement

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		raw  bool
		want string
		err  bool
	}{
		{in: "1.234,56", want: "1234.56"},
		{in: "-1.234,56", want: "-1234.56"},
		{in: "150,00", want: "150"},
		{in: "150.00", want: "150"},
		{in: "1.234", want: "1234"},
		{in: "1.234.567,8", want: "1234567.8"},
		{in: "1,234.56", want: "1234.56"},
		{in: "€ 12,50", want: "12.5"},
		{in: "(12,50)", want: "-12.5"},
		{in: "12,50-", want: "-12.5"},
		{in: "+7", want: "7"},
		{in: "1234.567", raw: true, want: "1234.57"},
		{in: "abc", err: true},
		{in: "1,2,3", err: true},
		{in: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in, tt.raw)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		raw  bool
		want time.Time
		err  bool
	}{
		{in: "05/03/2024", want: day(2024, 3, 5)},
		{in: "5/3/2024", want: day(2024, 3, 5)},
		{in: "05/03/24", want: day(2024, 3, 5)},
		{in: "2024-03-05", want: day(2024, 3, 5)},
		{in: "2024-03-05 00:00:00", want: day(2024, 3, 5)},
		{in: "05-03-2024", want: day(2024, 3, 5)},
		{in: "05.03.2024", want: day(2024, 3, 5)},
		{in: "45356", raw: true, want: day(2024, 3, 5)},
		{in: "31/02/2024", err: true},
		{in: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in, tt.raw)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s", got)
		})
	}
}

func TestParse_SemicolonCSVWithPreamble(t *testing.T) {
	input := strings.Join([]string{
		"Conto corrente;IT60X0542811101000000123456",
		"Periodo;01/03/2024 - 31/03/2024",
		"",
		"Data contabile;Data valuta;Importo;Causale;Descrizione",
		"05/03/2024;05/03/2024;-150,00;BONIFICO;PAGAMENTO FT 1234",
		"06/03/2024;06/03/2024;-1,50;COMMISSIONI;",
		";;;;",
		"07/03/2024;07/03/2024;1.200,00;ACCREDITO POS;\"INCASSI  POS\"",
		"xx/03/2024;07/03/2024;10,00;ERRATA;",
	}, "\n")

	parsed, err := Parse(strings.NewReader(input), "estratto.csv")
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 3)

	first := parsed.Rows[0]
	assert.Equal(t, 5, first.Line)
	assert.True(t, first.Date.Equal(day(2024, 3, 5)))
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("-150")))
	assert.Equal(t, "BONIFICO PAGAMENTO FT 1234", first.Description)

	assert.Equal(t, "COMMISSIONI", parsed.Rows[1].Description)
	assert.Equal(t, "ACCREDITO POS INCASSI POS", parsed.Rows[2].Description)
	assert.True(t, parsed.Rows[2].Amount.Equal(decimal.RequireFromString("1200")))

	require.Len(t, parsed.Invalid, 1)
	assert.Equal(t, 9, parsed.Invalid[0].Line)
}

func TestParse_DebitCreditColumnsLatin1(t *testing.T) {
	text := "Data,Descrizione operazione,Dare,Avere\n" +
		"02/05/2024,VERSAMENTO CONTANTI CITTÀ,,500.00\n" +
		"03/05/2024,PAGAMENTO F24 DELEGA,\"1.234,56\",\n" +
		"04/05/2024,STORNO,0,0\n"
	latin1, err := charmap.ISO8859_1.NewEncoder().String(text)
	require.NoError(t, err)

	parsed, err := Parse(strings.NewReader(latin1), "movimenti.CSV")
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 2)

	assert.Equal(t, "VERSAMENTO CONTANTI CITTÀ", parsed.Rows[0].Description)
	assert.True(t, parsed.Rows[0].Amount.Equal(decimal.RequireFromString("500")))
	assert.True(t, parsed.Rows[1].Amount.Equal(decimal.RequireFromString("-1234.56")))

	require.Len(t, parsed.Invalid, 1)
	assert.Equal(t, "zero amount", parsed.Invalid[0].Reason)
}

func TestParse_NoHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("a;b;c\n1;2;3\n"), "x.csv")
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestParse_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Estratto conto"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Data", "Descrizione", "Importo"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]interface{}{day(2024, 3, 5), "PAGAMENTO FT 1234", -150.0}))
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]interface{}{"08/03/2024", "ACCREDITO POS", 200.5}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	parsed, err := Parse(&buf, "estratto.xlsx")
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 2)
	assert.True(t, parsed.Rows[0].Date.Equal(day(2024, 3, 5)))
	assert.True(t, parsed.Rows[0].Amount.Equal(decimal.RequireFromString("-150")))
	assert.True(t, parsed.Rows[1].Date.Equal(day(2024, 3, 8)))
	assert.True(t, parsed.Rows[1].Amount.Equal(decimal.RequireFromString("200.5")))
	assert.Empty(t, parsed.Invalid)
}
