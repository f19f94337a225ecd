package stream

import (
	"net/http"
	"strconv"
)

// HTTPSink writes a chunked WAV response and flushes after every frame.
type HTTPSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewHTTPSink wraps a response writer. Headers are written by
// WriteHeaders, not here.
func NewHTTPSink(w http.ResponseWriter) *HTTPSink {
	return &HTTPSink{w: w, rc: http.NewResponseController(w)}
}

// WriteHeaders sets the streaming response headers. extra headers are
// added before the status line is sent.
func (s *HTTPSink) WriteHeaders(extra http.Header) {
	h := s.w.Header()
	h.Set("Content-Type", "audio/wav")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	for k, vs := range extra {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	s.w.WriteHeader(http.StatusOK)
}

func (s *HTTPSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *HTTPSink) Flush() error {
	err := s.rc.Flush()
	if err == http.ErrNotSupported {
		return nil
	}
	return err
}

// AudioHeaders describes a render in response headers.
func AudioHeaders(seed, key string, tempo float64) http.Header {
	h := http.Header{}
	h.Set("X-Audio-Seed", seed)
	h.Set("X-Audio-Key", key)
	h.Set("X-Audio-Tempo", strconv.FormatFloat(tempo, 'f', 2, 64))
	return h
}
