package spec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	var a Aggregator
	a.Add(Method{
		Name:        "method_a",
		Description: "Does a thing",
		Params: []ContentDescriptor{
			{Name: "a", Required: true, Schema: Schema(`{"type":"string"}`)},
		},
		Result: &ContentDescriptor{Name: "MethodAResponse", Required: true, Schema: Schema(`{"type":"integer"}`)},
	})
	a.Add(Method{
		Name:       "method_b",
		Params:     []ContentDescriptor{},
		Result:     &ContentDescriptor{Name: "MethodBResponse", Required: true, Schema: NullSchema, Deprecated: true},
		Deprecated: true,
	})
	return a.Document(NewInfo("sample", "2.0"))
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("openrpc.json"))
	assert.Equal(t, FormatYAML, FormatFromPath("openrpc.yaml"))
	assert.Equal(t, FormatYAML, FormatFromPath("OPENRPC.YML"))
	assert.Equal(t, FormatCBOR, FormatFromPath("openrpc.cbor"))
	assert.Equal(t, FormatJSON, FormatFromPath("openrpc"))
}

func TestWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := sampleDocument()

	for _, name := range []string{"openrpc.json", "openrpc.yaml", "openrpc.cbor"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, want.WriteFile(path))

			got, err := ReadFile(path)
			require.NoError(t, err)
			require.Len(t, got.Methods, 2)
			assert.Equal(t, "method_a", got.Methods[0].Name)
			assert.Equal(t, "Does a thing", got.Methods[0].Description)
			assert.Equal(t, "string", got.Methods[0].Params[0].Schema.Get("type").String())
			assert.True(t, got.Methods[0].Params[0].Required)
			assert.True(t, got.Methods[1].Deprecated)
			assert.True(t, got.Methods[1].Result.Deprecated)
			assert.Equal(t, "2.0", got.Info.Version)
		})
	}
}

func TestYAMLKeepsFieldOrder(t *testing.T) {
	b, err := sampleDocument().Encode(FormatYAML)
	require.NoError(t, err)

	out := string(b)
	assert.True(t, strings.HasPrefix(out, "openrpc: 1.3.2\n"), out)
	assert.Less(t, strings.Index(out, "info:"), strings.Index(out, "methods:"))
	assert.Less(t, strings.Index(out, "method_a"), strings.Index(out, "method_b"))
	// "2.0" must stay a string.
	assert.Contains(t, out, `version: "2.0"`)
}

func TestJSONIsIndented(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, sampleDocument().WriteFile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "\n  \"info\": {")
}

func TestDocumentString(t *testing.T) {
	s := sampleDocument().String()
	assert.True(t, strings.HasPrefix(s, "{\n"))
	assert.True(t, strings.HasSuffix(s, "}"))
}

func TestMarshalCBOR(t *testing.T) {
	doc := sampleDocument()
	want, err := doc.Encode(FormatCBOR)
	require.NoError(t, err)

	got, err := cbor.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	back, err := Decode(got, FormatCBOR)
	require.NoError(t, err)
	assert.Equal(t, "sample", back.Info.Title)
}
