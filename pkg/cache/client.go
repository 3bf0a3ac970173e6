package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// HTTPCache is a Cache client talking to a cacheserver instance. Stat
// degrades to an empty snapshot on transport errors: stats feed
// reporting only and must never stall the training loop.
type HTTPCache struct {
	baseURL string
	client  *http.Client
}

func NewHTTPCache(baseURL string) *HTTPCache {
	return &HTTPCache{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPCache) Put(envID string, program string) error {
	body, err := json.Marshal(PutRequest{EnvID: envID, Program: program})
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.baseURL+"/programs", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("cache server returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPCache) Stat() Stat {
	resp, err := c.client.Get(c.baseURL + "/stat")
	if err != nil {
		log.Printf("[cache] stat fetch failed: %v", err)
		return Stat{}
	}
	defer resp.Body.Close()

	var stat Stat
	if err := json.NewDecoder(resp.Body).Decode(&stat); err != nil {
		log.Printf("[cache] stat decode failed: %v", err)
		return Stat{}
	}
	return stat
}

func (c *HTTPCache) AllPrograms() map[string][]string {
	resp, err := c.client.Get(c.baseURL + "/programs")
	if err != nil {
		log.Printf("[cache] programs fetch failed: %v", err)
		return map[string][]string{}
	}
	defer resp.Body.Close()

	var payload ProgramsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Printf("[cache] programs decode failed: %v", err)
		return map[string][]string{}
	}
	if payload.Programs == nil {
		return map[string][]string{}
	}
	return payload.Programs
}
