// Package export archives recursive inventory snapshots to the blob store.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"itemcore/internal/blob"
	"itemcore/internal/item"
	"itemcore/pkg/domain"
)

// ItemSource resolves item handles. *item.Factory satisfies it.
type ItemSource interface {
	GetItem(ctx context.Context, id domain.ItemID, recurse bool) (*item.Item, error)
}

// Logger is the subset of slog used by the exporter.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Node is one item in an exported tree.
type Node struct {
	domain.Row
	Attributes domain.Attributes `json:"attributes,omitempty"`
	Contents   []Node            `json:"contents,omitempty"`
}

// Snapshot is the document stored for one export.
type Snapshot struct {
	ContainerID domain.ItemID `json:"container_id"`
	TakenAt     time.Time     `json:"taken_at"`
	ItemCount   int           `json:"item_count"`
	Root        Node          `json:"root"`
}

// Exporter writes snapshots under inventories/<containerID>/.
type Exporter struct {
	items  ItemSource
	store  blob.Store
	logger Logger
	now    func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the exporter logger.
func WithLogger(logger Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// New returns an Exporter reading from items and writing to store.
func New(items ItemSource, store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{items: items, store: store, logger: noopLogger{}, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prefix returns the blob key prefix holding exports of containerID.
func Prefix(containerID domain.ItemID) string {
	return "inventories/" + strconv.FormatUint(uint64(containerID), 10) + "/"
}

// Export loads containerID recursively and stores its tree as JSON.
func (e *Exporter) Export(ctx context.Context, containerID domain.ItemID) (blob.Info, error) {
	root, err := e.items.GetItem(ctx, containerID, true)
	if err != nil {
		return blob.Info{}, err
	}
	defer func() { _ = root.Release() }()

	taken := e.now()
	count := 0
	snap := Snapshot{
		ContainerID: containerID,
		TakenAt:     taken,
		Root:        buildNode(root, map[domain.ItemID]bool{}, &count),
	}
	snap.ItemCount = count

	body, err := json.Marshal(snap)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot %d: %w", containerID, err)
	}
	key := fmt.Sprintf("%s%d.json", Prefix(containerID), taken.UnixNano())
	info, err := e.store.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"container": strconv.FormatUint(uint64(containerID), 10),
			"items":     strconv.Itoa(count),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store snapshot %d: %w", containerID, err)
	}
	e.logger.Info("inventory exported", "container_id", containerID, "key", key, "items", count)
	return info, nil
}

func buildNode(it *item.Item, seen map[domain.ItemID]bool, count *int) Node {
	seen[it.ID()] = true
	*count++
	node := Node{Row: it.Row(), Attributes: it.Attributes()}
	for _, child := range it.Contents(false) {
		if seen[child.ID()] {
			continue
		}
		node.Contents = append(node.Contents, buildNode(child, seen, count))
	}
	return node
}

// List returns earlier exports of containerID, oldest first.
func (e *Exporter) List(ctx context.Context, containerID domain.ItemID) ([]blob.Info, error) {
	return e.store.List(ctx, Prefix(containerID))
}

// Load reads a stored snapshot back.
func (e *Exporter) Load(ctx context.Context, key string) (Snapshot, error) {
	_, rc, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			e.logger.Warn("snapshot missing", "key", key)
		}
		return Snapshot{}, err
	}
	defer rc.Close()
	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snap, nil
}
