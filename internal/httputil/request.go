package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxRequestBodyBytes = 1 << 20 // 1MB

// DecodeJSON reads and decodes a JSON request body into dst, rejecting
// oversized and malformed payloads.
func DecodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) > maxRequestBodyBytes {
		return fmt.Errorf("request body exceeds %d bytes", maxRequestBodyBytes)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
