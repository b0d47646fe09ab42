package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
)

const (
	encodingGzip = "gzip"
	encodingZstd = "zstd"
)

// encoder is the subset shared by *gzip.Writer and *zstd.Encoder.
type encoder interface {
	io.WriteCloser
	Flush() error
	Reset(w io.Writer)
}

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
	ExcludedPaths    []string // Path prefixes served uncompressed
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		CompressionLevel: 6,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
		},
		// promhttp negotiates its own encoding
		ExcludedPaths: []string{"/metrics"},
	}
}

// Compressor encodes responses with zstd or gzip, whichever the client
// accepts, preferring zstd.
type Compressor struct {
	config   CompressionConfig
	stats    CompressionStats
	gzipPool sync.Pool
	zstdPool sync.Pool
}

// NewCompressor creates a compressor. An out-of-range level falls back to
// gzip.DefaultCompression.
func NewCompressor(config CompressionConfig) *Compressor {
	level := config.CompressionLevel
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	cm := &Compressor{config: config}
	cm.gzipPool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, level)
		return gz
	}
	cm.zstdPool.New = func() interface{} {
		zw, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		return zw
	}
	return cm
}

// Handler returns the Gin middleware.
func (cm *Compressor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		encoding := negotiate(c.Request)
		if c.Request.Method == http.MethodHead || encoding == "" || cm.excluded(c.Request.URL.Path) {
			c.Next()
			return
		}

		w := &compressWriter{ResponseWriter: c.Writer, cm: cm, encoding: encoding}
		c.Writer = w
		defer func() {
			w.finish()
			c.Writer = w.ResponseWriter
		}()

		c.Next()
	}
}

// GetStats returns compression statistics
func (cm *Compressor) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}

func negotiate(r *http.Request) string {
	accept := r.Header.Get("Accept-Encoding")
	switch {
	case strings.Contains(accept, encodingZstd):
		return encodingZstd
	case strings.Contains(accept, encodingGzip):
		return encodingGzip
	}
	return ""
}

func (cm *Compressor) pool(encoding string) *sync.Pool {
	if encoding == encodingZstd {
		return &cm.zstdPool
	}
	return &cm.gzipPool
}

func (cm *Compressor) excluded(path string) bool {
	for _, p := range cm.config.ExcludedPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (cm *Compressor) compressible(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

// compressWriter decides on the first body write whether the response is
// compressed, based on the Content-Type the handler has set by then.
type compressWriter struct {
	gin.ResponseWriter
	cm       *Compressor
	encoding string
	enc      encoder
	decided  bool
	raw      int64
}

func (w *compressWriter) decide() {
	if w.decided {
		return
	}
	w.decided = true

	h := w.Header()
	if h.Get("Content-Encoding") != "" || !w.cm.compressible(h.Get("Content-Type")) {
		return
	}
	h.Set("Content-Encoding", w.encoding)
	h.Add("Vary", "Accept-Encoding")
	h.Del("Content-Length")

	w.enc = w.cm.pool(w.encoding).Get().(encoder)
	w.enc.Reset(w.ResponseWriter)
}

func (w *compressWriter) Write(data []byte) (int, error) {
	w.decide()
	w.raw += int64(len(data))
	if w.enc == nil {
		return w.ResponseWriter.Write(data)
	}
	return w.enc.Write(data)
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *compressWriter) Flush() {
	if w.enc != nil {
		w.enc.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *compressWriter) finish() {
	if w.enc == nil {
		if w.decided {
			w.cm.stats.RecordRequest(w.raw, w.raw, false)
		}
		return
	}
	w.enc.Close()
	w.cm.stats.RecordRequest(w.raw, int64(w.ResponseWriter.Size()), true)
	w.enc.Reset(io.Discard)
	w.cm.pool(w.encoding).Put(w.enc)
	w.enc = nil
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      atomic.Int64
	CompressedRequests atomic.Int64
	TotalBytes         atomic.Int64
	CompressedBytes    atomic.Int64
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, writtenSize int64, compressed bool) {
	cs.TotalRequests.Add(1)
	cs.TotalBytes.Add(originalSize)
	if compressed {
		cs.CompressedRequests.Add(1)
		cs.CompressedBytes.Add(writtenSize)
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	total := cs.TotalBytes.Load()
	compressed := cs.CompressedBytes.Load()

	compressionRatio := float64(0)
	if total > 0 {
		compressionRatio = float64(compressed) / float64(total)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests.Load(),
		"compressed_requests": cs.CompressedRequests.Load(),
		"total_bytes":         total,
		"compressed_bytes":    compressed,
		"compression_ratio":   compressionRatio,
	}
}
