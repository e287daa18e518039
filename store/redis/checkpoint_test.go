package redis

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HACKMANV8/saga/id"
)

// fakeClient stubs the narrow command surface ListCheckpoints touches.
// Any other command panics through the nil embedded interface.
type fakeClient struct {
	redis.Cmdable

	listing      []string
	metas        map[string][]any
	hgetallCalls int
}

func (f *fakeClient) Exists(_ context.Context, _ ...string) *redis.IntCmd {
	return redis.NewIntResult(1, nil)
}

func (f *fakeClient) LRange(_ context.Context, _ string, _, _ int64) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(f.listing, nil)
}

func (f *fakeClient) HMGet(_ context.Context, key string, _ ...string) *redis.SliceCmd {
	vals, ok := f.metas[key]
	if !ok {
		vals = []any{nil, nil, nil, nil}
	}
	return redis.NewSliceResult(vals, nil)
}

func (f *fakeClient) HGetAll(_ context.Context, _ string) *redis.MapStringStringCmd {
	f.hgetallCalls++
	return redis.NewMapStringStringResult(nil, nil)
}

func TestListCheckpointsFetchesMetadataOnly(t *testing.T) {
	t.Parallel()
	sesID := id.NewSessionID()
	cp1, cp2 := id.NewCheckpointID(), id.NewCheckpointID()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	fake := &fakeClient{
		listing: []string{cp1.String(), cp2.String()},
		metas: map[string][]any{
			checkpointKey(cp1.String()): {cp1.String(), sesID.String(), "concept", now},
			checkpointKey(cp2.String()): {cp2.String(), sesID.String(), "plot_arcs", now},
		},
	}
	s := New(fake)

	metas, err := s.ListCheckpoints(context.Background(), sesID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("len(metas) = %d, want 2", len(metas))
	}
	if metas[0].Stage != "concept" || metas[1].Stage != "plot_arcs" {
		t.Errorf("stages = [%s, %s], want [concept, plot_arcs]", metas[0].Stage, metas[1].Stage)
	}
	if fake.hgetallCalls != 0 {
		t.Errorf("listing fetched %d full checkpoint hashes, want 0", fake.hgetallCalls)
	}
}

func TestListCheckpointsLogsSkippedEntries(t *testing.T) {
	t.Parallel()
	sesID := id.NewSessionID()
	good, corrupt := id.NewCheckpointID(), id.NewCheckpointID()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	fake := &fakeClient{
		listing: []string{good.String(), corrupt.String()},
		metas: map[string][]any{
			checkpointKey(good.String()): {good.String(), sesID.String(), "concept", now},
		},
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := New(fake, WithLogger(logger))

	metas, err := s.ListCheckpoints(context.Background(), sesID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("len(metas) = %d, want 1", len(metas))
	}
	if !strings.Contains(buf.String(), "skipping unreadable checkpoint") {
		t.Errorf("missing warn log for skipped entry: %s", buf.String())
	}
}
