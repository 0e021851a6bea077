package middleware

import "net/http"

// recorder buffers the inner handler's response so the engine can append
// cookies and rewrite the status after the handler has returned. The last
// WriteHeader call wins; nothing reaches the underlying writer until flush.
type recorder struct {
	dst         http.ResponseWriter
	header      http.Header
	status      int
	wroteStatus bool
	body        []byte
	truncated   bool
}

func newRecorder(dst http.ResponseWriter) *recorder {
	return &recorder{
		dst:    dst,
		header: make(http.Header),
	}
}

func (rec *recorder) Header() http.Header {
	return rec.header
}

func (rec *recorder) WriteHeader(code int) {
	rec.status = code
	rec.wroteStatus = true
}

func (rec *recorder) Write(p []byte) (int, error) {
	if !rec.wroteStatus {
		rec.WriteHeader(http.StatusOK)
	}
	rec.body = append(rec.body, p...)
	return len(p), nil
}

// Status reports the buffered response status. The engine consults this to
// gate post-grant redirects (still 200?) and challenges (still 401?).
func (rec *recorder) Status() int {
	if !rec.wroteStatus {
		return http.StatusOK
	}
	return rec.status
}

func (rec *recorder) bodyLen() int {
	return len(rec.body)
}

// discardBodyBefore drops everything written before offset, keeping whatever
// a later rewrite (challenge redirect) produced.
func (rec *recorder) discardBodyBefore(offset int) {
	if offset <= 0 || offset > len(rec.body) {
		return
	}
	rec.body = rec.body[offset:]
	rec.truncated = true
}

// reset replaces the buffered response with an empty-bodied status. Used when
// the response phase fails after the handler already wrote output.
func (rec *recorder) reset(status int) {
	rec.body = nil
	rec.truncated = true
	rec.status = status
	rec.wroteStatus = true
}

// flush replays the buffered response onto the real writer.
func (rec *recorder) flush() {
	if rec.truncated {
		// Any handler-supplied length no longer matches the body.
		rec.header.Del("Content-Length")
	}

	dst := rec.dst.Header()
	for k, vs := range rec.header {
		dst[k] = vs
	}
	rec.dst.WriteHeader(rec.Status())
	if len(rec.body) > 0 {
		_, _ = rec.dst.Write(rec.body)
	}
}
