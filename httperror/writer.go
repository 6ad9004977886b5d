package httperror

import (
	"net/http"
)

// interceptWriter holds back error responses so an error page can replace them.
type interceptWriter struct {
	http.ResponseWriter

	status      int
	wroteHeader bool
	intercepted bool
}

func (w *interceptWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code

	if code >= http.StatusBadRequest {
		w.intercepted = true
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *interceptWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.intercepted {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *interceptWriter) Flush() {
	if w.intercepted {
		return
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wroteHeader {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

// committed reports whether a non error response already reached the client.
func (w *interceptWriter) committed() bool {
	return w.wroteHeader && !w.intercepted
}

func (w *interceptWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// passWriter records whether a passed through response wrote anything.
type passWriter struct {
	http.ResponseWriter

	wrote bool
}

func (w *passWriter) WriteHeader(code int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *passWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *passWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.wrote = true
		f.Flush()
	}
}

func (w *passWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
