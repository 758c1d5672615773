// Package webhook posts detection reports to an HTTP endpoint in batches.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/store"
)

type Options struct {
	URL           string
	BatchSize     int
	FlushInterval time.Duration
	Timeout       time.Duration
	Headers       map[string]string
	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
}

type Store struct {
	url           string
	batchSize     int
	flushInterval time.Duration
	timeout       time.Duration
	headers       map[string]string

	client *http.Client

	mu        sync.Mutex
	buf       []*detect.Report
	lastFlush time.Time
	closed    bool
}

func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	hcopy := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		hcopy[k] = v
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Store{
		url:           opts.URL,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		timeout:       opts.Timeout,
		headers:       hcopy,
		client:        client,
		lastFlush:     time.Now().UTC(),
	}, nil
}

// AppendReport buffers r and posts the buffer once it reaches the batch size
// or the flush interval has elapsed since the last post.
func (s *Store) AppendReport(ctx context.Context, r *detect.Report) error {
	if r == nil {
		return nil
	}
	var toFlush []*detect.Report

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("webhook store closed")
	}
	s.buf = append(s.buf, r)
	now := time.Now().UTC()
	if len(s.buf) >= s.batchSize || now.Sub(s.lastFlush) >= s.flushInterval {
		toFlush = s.buf
		s.buf = nil
		s.lastFlush = now
	}
	s.mu.Unlock()

	if len(toFlush) == 0 {
		return nil
	}
	return s.flush(ctx, toFlush)
}

func (s *Store) QueryReports(context.Context, store.ReportQuery) ([]*detect.Report, error) {
	return nil, store.ErrQueryUnsupported
}

// Close posts whatever is still buffered.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	toFlush := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(toFlush) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.flush(ctx, toFlush)
}

func (s *Store) flush(ctx context.Context, batch []*detect.Report) error {
	b, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post reports: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}
