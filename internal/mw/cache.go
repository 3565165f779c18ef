package mw

import (
	"bytes"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache holds successful GET responses until they expire or a write
// goes through InvalidateOnWrite.
type ResponseCache struct {
	store    *cache.Cache
	duration time.Duration
	// generation is bumped by every successful write. A response rendered
	// across a bump may hold pre-write data and is not stored.
	generation atomic.Uint64
}

// NewResponseCache creates a cache whose entries live for duration.
func NewResponseCache(duration time.Duration) *ResponseCache {
	return &ResponseCache{
		store:    cache.New(duration, 2*duration),
		duration: duration,
	}
}

// Cache is a middleware for in-memory caching of GET requests.
func (rc *ResponseCache) Cache() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if resp, found := rc.store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		generation := rc.generation.Load()
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// Only cache successful responses
		if blw.Status() < 200 || blw.Status() >= 300 {
			return
		}
		if rc.generation.Load() != generation {
			return
		}
		rc.store.Set(key, cachedResponse{
			status:  blw.Status(),
			headers: blw.Header().Clone(),
			body:    blw.body.Bytes(),
		}, rc.duration)
	}
}

// InvalidateOnWrite drops every cached response once a non-GET request
// succeeds, so dashboards never show hours older than the last report.
func (rc *ResponseCache) InvalidateOnWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		if c.Writer.Status() < http.StatusBadRequest {
			rc.generation.Add(1)
			rc.store.Flush()
		}
	}
}
