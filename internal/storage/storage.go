// Package storage archives purchase receipts and operator alerts to object
// storage.
package storage

import (
	"context"
	"time"
)

const (
	ReceiptPrefix   = "receipts/"
	OrphanPrefix    = "orphans/"
	UnmatchedPrefix = "unmatched/"
)

type ObjectInfo struct {
	Key          string     `json:"key"`
	Size         int64      `json:"size"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// Archive stores JSON documents under a key prefix.
type Archive interface {
	PutJSON(ctx context.Context, key string, v any) error
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	GetObjectURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
