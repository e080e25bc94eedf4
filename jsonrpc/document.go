package jsonrpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/mnehpets/openspec/endpoint"
	"github.com/mnehpets/openspec/spec"
)

// Documenter produces an OpenRPC document. *Module implements it.
type Documenter interface {
	Spec() spec.Document
}

// DocumentEndpoint serves d's document in format f. The document is built
// per request, so it reflects the registry at the time of the call.
func DocumentEndpoint(d Documenter, f spec.Format) endpoint.EndpointFunc {
	return func(w http.ResponseWriter, r *http.Request) (endpoint.Renderer, error) {
		doc := d.Spec()
		switch f {
		case spec.FormatJSON:
			return &endpoint.JSONRenderer{Value: doc, EncoderFactory: indentEncoder}, nil
		case spec.FormatCBOR:
			return &endpoint.CBORRenderer{Value: doc}, nil
		case spec.FormatYAML:
			b, err := doc.Encode(f)
			if err != nil {
				return nil, endpoint.Error(http.StatusInternalServerError, "", err)
			}
			return &endpoint.BytesRenderer{ContentType: "application/yaml", Body: b}, nil
		}
		return nil, endpoint.Error(http.StatusNotAcceptable, "unsupported document format "+f.String(), nil)
	}
}

func indentEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc
}
