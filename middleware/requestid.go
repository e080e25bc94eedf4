package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/mnehpets/openspec/endpoint"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestIDProcessor assigns every request an id. A well-formed incoming
// X-Request-ID is kept; otherwise a random UUID is generated. The id is
// echoed in the response and stored with endpoint.WithRequestID.
type RequestIDProcessor struct {
	// TrustIncoming keeps ids supplied by the client.
	TrustIncoming bool
}

func NewRequestIDProcessor(trustIncoming bool) *RequestIDProcessor {
	return &RequestIDProcessor{TrustIncoming: trustIncoming}
}

func (p *RequestIDProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	id := r.Header.Get(RequestIDHeader)
	if !p.TrustIncoming || !validRequestID.MatchString(id) {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return next(w, r.WithContext(endpoint.WithRequestID(r.Context(), id)))
}

var _ endpoint.Processor = (*RequestIDProcessor)(nil)
