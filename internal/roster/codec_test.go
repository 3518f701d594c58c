package roster

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleRecords = []Record{
	{ID: 1, Name: "Ada Lovelace", AvatarRef: "avatars/ada.png", Rarity: Ordinary},
	{ID: 2, Name: "Grace Hopper", Rarity: SuperRare},
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"class.json":     FormatJSON,
		"class.YAML":     FormatYAML,
		"dir/class.yml":  FormatYAML,
		"/abs/class.cue": FormatCUE,
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := FormatFromPath("class.csv")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("toml")
	assert.Error(t, err)
}

func TestEncode_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, format := range []Format{FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, sampleRecords, format))
		g.Assert(t, "export_"+string(format), buf.Bytes())
	}
}

func TestEncode_CUEUnsupported(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, sampleRecords, FormatCUE))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, sampleRecords, format))

		got, err := Decode(buf.Bytes(), format)
		require.NoError(t, err, format)
		assert.Equal(t, sampleRecords, got, format)
	}
}

func TestDecodeJSON_RejectsNonList(t *testing.T) {
	tests := map[string]string{
		"object":       `{"id": 1}`,
		"scalar":       `42`,
		"list of ints": `[1, 2]`,
		"bad field":    `[{"id": "one"}]`,
		"truncated":    `[{"id": 1}`,
		"null":         "null",
		"padded null":  " null\n",
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload), FormatJSON)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDecodeJSON_EmptyListIsNotNull(t *testing.T) {
	got, err := Decode([]byte(`[]`), FormatJSON)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDecodeJSON_PartialRecords(t *testing.T) {
	got, err := Decode([]byte(`[{"name": "Ada"}, {"id": 4, "rarity": "rare", "isDrawn": true}]`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []Record{{Name: "Ada"}, {ID: 4, Rarity: Rare}}, got)
}

func TestDecodeYAML(t *testing.T) {
	payload := `
- id: 1
  name: Ada
- name: Grace
  rarity: rare
`
	got, err := Decode([]byte(payload), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []Record{{ID: 1, Name: "Ada"}, {Name: "Grace", Rarity: Rare}}, got)
}

func TestDecodeYAML_Empty(t *testing.T) {
	got, err := Decode([]byte(""), FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeYAML_RejectsNonList(t *testing.T) {
	for _, payload := range []string{"name: Ada\n", "- just a string\n", "[: bad", "null\n", "~\n"} {
		_, err := Decode([]byte(payload), FormatYAML)
		require.Error(t, err, payload)
		assert.ErrorIs(t, err, ErrValidation, payload)
	}
}

func TestDecodeCUE(t *testing.T) {
	payload := `
students: [
	{id: 1, name: "Ada", rarity: "super-rare"},
	{name: "Grace", avatarRef: "avatars/grace.png"},
]
`
	got, err := Decode([]byte(payload), FormatCUE)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{ID: 1, Name: "Ada", Rarity: SuperRare},
		{Name: "Grace", AvatarRef: "avatars/grace.png"},
	}, got)
}

func TestDecodeCUE_SchemaViolations(t *testing.T) {
	tests := map[string]string{
		"missing students": `teachers: []`,
		"not a list":       `students: {id: 1}`,
		"negative id":      `students: [{id: -1}]`,
		"unknown field":    `students: [{id: 1, age: 12}]`,
		"empty rarity":     `students: [{id: 1, rarity: ""}]`,
		"syntax":           `students: [`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload), FormatCUE)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "class.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 3, "name": "Linus"}]`), 0o644))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Record{{ID: 3, Name: "Linus"}}, got)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{}`), 0o644))
	_, err = LoadFile(bad)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "bad.json")
}
