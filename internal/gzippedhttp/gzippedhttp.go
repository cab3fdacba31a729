// Package gzippedhttp provides middlewares that transparently decompress
// gzip request bodies and compress responses for clients that accept gzip.
package gzippedhttp

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

var writers = sync.Pool{
	New: func() interface{} {
		zw, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return zw
	},
}

// hasGzip reports whether a comma separated encoding header lists gzip.
func hasGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(coding, "gzip") {
			return true
		}
	}

	return false
}

type gzipBody struct {
	source io.ReadCloser
	*gzip.Reader
}

func (b *gzipBody) Close() error {
	if err := b.Reader.Close(); err != nil {
		b.source.Close()
		return err
	}

	return b.source.Close()
}

// gzipResponseWriter compresses bodies of 2xx responses except 204.
// Other responses pass through unchanged.
type gzipResponseWriter struct {
	http.ResponseWriter
	zw          *gzip.Writer
	wroteHeader bool
	compress    bool
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	w.compress = statusCode >= 200 && statusCode < 300 && statusCode != http.StatusNoContent
	if w.compress {
		header := w.Header()
		header.Set("Content-Encoding", "gzip")
		header.Del("Content-Length")
		header.Add("Vary", "Accept-Encoding")
		w.zw.Reset(w.ResponseWriter)
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *gzipResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.compress {
		return w.zw.Write(p)
	}

	return w.ResponseWriter.Write(p)
}

// finish terminates the gzip stream if one was started.
func (w *gzipResponseWriter) finish() error {
	if !w.compress {
		return nil
	}

	return w.zw.Close()
}

// GzipResponse compresses responses for requests whose Accept-Encoding
// lists gzip.
func GzipResponse(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if !hasGzip(request.Header.Get("Accept-Encoding")) {
			h.ServeHTTP(response, request)
			return
		}

		zw := writers.Get().(*gzip.Writer)
		writer := &gzipResponseWriter{ResponseWriter: response, zw: zw}
		defer func() {
			_ = writer.finish()
			zw.Reset(io.Discard)
			writers.Put(zw)
		}()

		h.ServeHTTP(writer, request)
	})
}

// UngzipRequest replaces a gzip-encoded request body with a decompressing
// reader. A body that is not valid gzip is rejected with 400.
func UngzipRequest(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if !hasGzip(request.Header.Get("Content-Encoding")) {
			h.ServeHTTP(response, request)
			return
		}

		zr, err := gzip.NewReader(request.Body)
		if err != nil {
			http.Error(response, "malformed gzip body", http.StatusBadRequest)
			return
		}
		request.Body = &gzipBody{source: request.Body, Reader: zr}
		request.Header.Del("Content-Encoding")
		defer request.Body.Close()

		h.ServeHTTP(response, request)
	})
}
