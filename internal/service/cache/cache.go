// Package cache holds the response cache behind the read-side API
// handlers.
package cache

import "time"

// ResponseCache stores pre-marshaled response bodies under string
// keys. Load reports a miss with ok=false rather than an error.
type ResponseCache interface {
	Load(key string) (body []byte, ok bool, err error)
	Store(key string, body []byte, ttl time.Duration) error
}
