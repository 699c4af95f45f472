package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/labfit/internal/dataset"
)

var testKinds = []string{"capacitance", "mott-schottky", "cyclic-voltammetry"}

const testProfiles = `
profiles:
  capacitance-1k:
    kind: capacitance
    description: AC sweep at 1 kHz
    format:
      delimiter: tab
      skip_rows: 1
    inputs:
      - path: AC/scan_1kHz.txt
        value: 1000
    params:
      frequency: 1000
      columns:
        voff: 0
        vout: 1
        gain: "Gain"
    output:
      dpi: 300
      workbook: true
  pedot-1.5:
    kind: cyclic-voltammetry
    format:
      delimiter: ";"
      decimal: ","
      header: true
      fallback:
        delimiter: ","
        header: true
    inputs:
      - path: PEDOT/cv.csv
        label: deposition
        role: cv
`

func TestParseProfiles(t *testing.T) {
	ps, err := ParseProfiles(strings.NewReader(testProfiles), testKinds)
	require.NoError(t, err)

	assert.Equal(t, []string{"capacitance-1k", "pedot-1.5"}, ps.Names())

	p, err := ps.Get("capacitance-1k")
	require.NoError(t, err)
	assert.Equal(t, "capacitance-1k", p.Name)
	assert.Equal(t, "capacitance", p.Kind)
	assert.Equal(t, 1, p.Format.SkipRows)
	assert.Equal(t, "tab", p.Format.Delimiter)
	assert.Equal(t, 300, p.Output.DPI)
	assert.True(t, p.Output.Workbook)
	require.Len(t, p.Inputs, 1)
	assert.Equal(t, 1000.0, p.Inputs[0].Value)
	assert.Equal(t, "scan_1kHz.txt", p.Inputs[0].Name())

	cv, err := ps.Get("PEDOT-1.5")
	require.NoError(t, err)
	require.NotNil(t, cv.Format.Fallback)
	assert.Equal(t, ",", cv.Format.Fallback.Delimiter)
	assert.Equal(t, "deposition", cv.Inputs[0].Name())
	assert.Len(t, cv.InputsWithRole("cv"), 1)
	assert.Empty(t, cv.InputsWithRole("z-fit"))
}

func TestDecodeParamsWithColumnRefs(t *testing.T) {
	ps, err := ParseProfiles(strings.NewReader(testProfiles), testKinds)
	require.NoError(t, err)

	var params struct {
		Frequency float64 `mapstructure:"frequency"`
		Columns   struct {
			Voff dataset.ColumnRef `mapstructure:"voff"`
			Vout dataset.ColumnRef `mapstructure:"vout"`
			Gain dataset.ColumnRef `mapstructure:"gain"`
		} `mapstructure:"columns"`
	}
	p, _ := ps.Get("capacitance-1k")
	require.NoError(t, Decode(p.Params, &params))

	assert.Equal(t, 1000.0, params.Frequency)
	assert.Equal(t, dataset.Col(0), params.Columns.Voff)
	assert.Equal(t, dataset.Col(1), params.Columns.Vout)
	assert.Equal(t, dataset.Named("Gain"), params.Columns.Gain)
}

func TestParseProfilesRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown kind",
			yaml: "profiles:\n  x:\n    kind: spectroscopy\n    inputs:\n      - path: a.txt\n",
			want: "analysiskind",
		},
		{
			name: "no inputs",
			yaml: "profiles:\n  x:\n    kind: capacitance\n",
			want: "inputs",
		},
		{
			name: "empty path",
			yaml: "profiles:\n  x:\n    kind: capacitance\n    inputs:\n      - label: a\n",
			want: "path",
		},
		{
			name: "negative skip rows",
			yaml: "profiles:\n  x:\n    kind: capacitance\n    format:\n      skip_rows: -1\n    inputs:\n      - path: a.txt\n",
			want: "skip_rows",
		},
		{
			name: "dpi out of range",
			yaml: "profiles:\n  x:\n    kind: capacitance\n    output:\n      dpi: 5\n    inputs:\n      - path: a.txt\n",
			want: "dpi",
		},
		{
			name: "bad decimal",
			yaml: "profiles:\n  x:\n    kind: capacitance\n    format:\n      decimal: \"'\"\n    inputs:\n      - path: a.txt\n",
			want: "decimal",
		},
		{
			name: "unknown field",
			yaml: "profiles:\n  x:\n    kind: capacitance\n    inptus: []\n    inputs:\n      - path: a.txt\n",
			want: "inptus",
		},
		{
			name: "empty file",
			yaml: "other: 1\n",
			want: "no profiles",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfiles(strings.NewReader(tt.yaml), testKinds)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetUnknownProfile(t *testing.T) {
	_, err := Profiles{}.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestLoadProfilesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testProfiles), 0o644))

	ps, err := LoadProfiles(path, testKinds)
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "none.yaml"), testKinds)
	assert.Error(t, err)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("PLOT_DPI", "300")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 300, cfg.Analysis.PlotDPI)
	assert.Equal(t, "configs/profiles.yaml", cfg.Analysis.ProfilesFile)
	assert.Equal(t, "labfit-data", cfg.AWS.S3Bucket)
}
