package middleware

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // smallest body worth compressing, in bytes
	CompressionLevel int      // gzip level, 1-9
	ContentTypes     []string // response types eligible for compression
}

// DefaultCompressionConfig compresses JSON and the swagger assets above 1KB
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
		},
	}
}

// CompressionMiddleware gzips responses for clients that accept it
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	if config.CompressionLevel < gzip.HuffmanOnly || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = gzip.DefaultCompression
	}
	cm := &CompressionMiddleware{
		config: config,
		stats:  &CompressionStats{},
	}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler returns the gin middleware. Bodies are buffered until MinSize is
// reached; shorter bodies are sent as is.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") || c.Request.Method == "HEAD" {
			c.Next()
			return
		}

		original := c.Writer
		gw := &gzipResponseWriter{ResponseWriter: original, cm: cm}
		c.Writer = gw
		c.Header("Vary", "Accept-Encoding")
		defer func() {
			gw.finish()
			c.Writer = original
		}()

		c.Next()
	}
}

// GetStats returns compression counters
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}

func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// gzipResponseWriter buffers the start of a body and switches to gzip once
// it is large enough.
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm          *CompressionMiddleware
	buf         bytes.Buffer
	gz          *gzip.Writer
	counter     *countingWriter
	passthrough bool
	original    int64
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	w.original += int64(len(data))
	switch {
	case w.gz != nil:
		return w.gz.Write(data)
	case w.passthrough:
		return w.ResponseWriter.Write(data)
	}

	w.buf.Write(data)
	if w.buf.Len() < w.cm.config.MinSize {
		return len(data), nil
	}
	if !w.cm.shouldCompress(w.Header().Get("Content-Type")) || w.Header().Get("Content-Encoding") != "" {
		w.passthrough = true
		if err := w.flushBuffer(); err != nil {
			return 0, err
		}
		return len(data), nil
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Del("Content-Length")
	w.counter = &countingWriter{w: w.ResponseWriter}
	w.gz = w.cm.pool.Get().(*gzip.Writer)
	w.gz.Reset(w.counter)
	if _, err := w.gz.Write(w.buf.Bytes()); err != nil {
		return 0, err
	}
	w.buf.Reset()
	return len(data), nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// WriteHeaderNow sends headers immediately, so the body can no longer be
// compressed.
func (w *gzipResponseWriter) WriteHeaderNow() {
	if w.gz == nil && !w.passthrough {
		w.passthrough = true
		_ = w.flushBuffer()
	}
	w.ResponseWriter.WriteHeaderNow()
}

func (w *gzipResponseWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	} else if !w.passthrough {
		w.passthrough = true
		_ = w.flushBuffer()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipResponseWriter) flushBuffer() error {
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

func (w *gzipResponseWriter) finish() {
	if w.gz != nil {
		_ = w.gz.Close()
		w.cm.pool.Put(w.gz)
		w.gz = nil
		w.cm.stats.RecordRequest(w.original, w.counter.n, true)
		return
	}
	_ = w.flushBuffer()
	w.cm.stats.RecordRequest(w.original, w.original, false)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
}

// RecordRequest adds one response to the counters
func (cs *CompressionStats) RecordRequest(originalSize, sentSize int64, compressed bool) {
	atomic.AddInt64(&cs.TotalRequests, 1)
	atomic.AddInt64(&cs.TotalBytes, originalSize)
	if compressed {
		atomic.AddInt64(&cs.CompressedRequests, 1)
	}
	atomic.AddInt64(&cs.CompressedBytes, sentSize)
}

// GetStats returns a snapshot of the counters
func (cs *CompressionStats) GetStats() map[string]interface{} {
	total := atomic.LoadInt64(&cs.TotalBytes)
	sent := atomic.LoadInt64(&cs.CompressedBytes)

	ratio := float64(0)
	if total > 0 {
		ratio = float64(sent) / float64(total)
	}

	return map[string]interface{}{
		"total_requests":      atomic.LoadInt64(&cs.TotalRequests),
		"compressed_requests": atomic.LoadInt64(&cs.CompressedRequests),
		"total_bytes":         total,
		"sent_bytes":          sent,
		"compression_ratio":   ratio,
	}
}
