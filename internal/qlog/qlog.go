// Package qlog persists query records as a JSON array on disk. Appends
// rewrite the file through a temp file and atomic rename, so a crash
// mid-write never loses previously logged records.
package qlog

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// Record is one logged query exchange.
type Record struct {
	QueryText         string   `json:"query_text"`
	Response          string   `json:"response"`
	Sources           []string `json:"sources"`
	TotalTimeSeconds  float64  `json:"total_time_seconds"`
	SearchTimeSeconds float64  `json:"search_time_seconds"`
	ModelTimeSeconds  float64  `json:"model_time_seconds"`
	FirstRequest      bool     `json:"first_request"`
	ChangeMade        bool     `json:"change_made"`
	Error             string   `json:"error"`
}

// Log is a concurrency-safe append-only query log.
type Log struct {
	mu   sync.Mutex
	path string
}

// New creates a log backed by the given file path. The file is created on
// first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Normalized returns a copy with timing fields rounded to milliseconds, a
// missing error defaulted to "None", and a nil source list made empty, so
// every persisted or served record has the same shape.
func (r Record) Normalized() Record {
	r.TotalTimeSeconds = round3(r.TotalTimeSeconds)
	r.SearchTimeSeconds = round3(r.SearchTimeSeconds)
	r.ModelTimeSeconds = round3(r.ModelTimeSeconds)
	if r.Error == "" {
		r.Error = "None"
	}
	if r.Sources == nil {
		r.Sources = []string{}
	}
	return r
}

// Append adds a record, normalized, to the log.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec = rec.Normalized()

	records, err := l.readLocked()
	if err != nil {
		return err
	}
	records = append(records, rec)
	return l.writeLocked(records)
}

// Records returns every logged record, oldest first. A missing file is an
// empty log.
func (l *Log) Records() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

// Len returns the number of logged records.
func (l *Log) Len() (int, error) {
	records, err := l.Records()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (l *Log) readLocked() ([]Record, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read query log: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse query log: %w", err)
	}
	return records, nil
}

func (l *Log) writeLocked(records []Record) error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create query log directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode query log: %w", err)
	}

	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write query log: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace query log: %w", err)
	}
	return nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
