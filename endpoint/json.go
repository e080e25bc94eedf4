package endpoint

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fxamacker/cbor/v2"
)

// JSONRenderer serializes a value as JSON and writes it to the response.
//
// Content-Type is always set to "application/json". The encoder does not
// escape HTML and appends a trailing newline.
type JSONRenderer struct {
	Status int
	Value  any

	// EncoderFactory optionally customizes encoder creation.
	EncoderFactory func(w io.Writer) *json.Encoder
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOr(jr.Status, http.StatusOK))

	var enc *json.Encoder
	if jr.EncoderFactory != nil {
		enc = jr.EncoderFactory(w)
	} else {
		enc = json.NewEncoder(w)
		enc.SetEscapeHTML(false)
	}
	if enc == nil {
		return io.ErrUnexpectedEOF
	}
	return enc.Encode(jr.Value)
}

// CBORRenderer serializes a value as CBOR with deterministic encoding.
//
// Encoding happens before the header is written, so an encoding failure
// still leaves the response unwritten.
type CBORRenderer struct {
	Status int
	Value  any
}

var cborMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func (cr *CBORRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	b, err := cborMode.Marshal(cr.Value)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(statusOr(cr.Status, http.StatusOK))
	_, err = w.Write(b)
	return err
}

func statusOr(status, def int) int {
	if status == 0 {
		return def
	}
	return status
}
