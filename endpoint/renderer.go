package endpoint

import "net/http"

// StringRenderer writes a string body with an optional status code and
// content type. ContentType defaults to "text/plain; charset=utf-8" unless
// a Content-Type header was already set.
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

func (tr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if w.Header().Get("Content-Type") == "" {
		ct := tr.ContentType
		if ct == "" {
			ct = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(statusOr(tr.Status, http.StatusOK))
	if tr.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(tr.Body))
	return err
}

// BytesRenderer writes pre-encoded content.
type BytesRenderer struct {
	Status      int
	ContentType string
	Body        []byte
}

func (br *BytesRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if br.ContentType != "" {
		w.Header().Set("Content-Type", br.ContentType)
	}
	w.WriteHeader(statusOr(br.Status, http.StatusOK))
	_, err := w.Write(br.Body)
	return err
}

// NoContentRenderer writes a response with no body and a specific status code.
//
// If Status is 0, it defaults to http.StatusNoContent.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(statusOr(ncr.Status, http.StatusNoContent))
	return nil
}
