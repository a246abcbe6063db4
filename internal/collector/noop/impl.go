// Package noop provides the collector used when chunks are only analyzed:
// everything appended is dropped.
package noop

import (
	ddchunker "github.com/anjor/ddar/internal/chunker"
	ddcollector "github.com/anjor/ddar/internal/collector"
)

type nulCollector struct{}

func NewCollector() ddcollector.Collector { return nulCollector{} }

func (nulCollector) AppendChunk(ddchunker.Chunk, []byte) error { return nil }
func (nulCollector) Flush() error                              { return nil }
func (nulCollector) Abort()                                    {}
