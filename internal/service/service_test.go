package service

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/kvservice/kv/internal/store"
	"github.com/kvservice/kv/internal/wire"
)

func newTestService() *Service {
	return New(store.NewMemoryStore())
}

func sortedPairs(pairs []wire.KvPair) []wire.KvPair {
	out := make([]wire.KvPair, len(pairs))
	copy(out, pairs)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func TestHsetNewKeyReturnsEmptySentinel(t *testing.T) {
	s := newTestService()
	resp := s.Dispatch(context.Background(), wire.CommandRequest{
		Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(10),
	})
	if resp.Status != wire.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if len(resp.Values) != 1 || !resp.Values[0].IsEmpty() {
		t.Errorf("got %+v, want a single empty sentinel value", resp.Values)
	}
}

func TestHsetExistingKeyReturnsPrior(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(10)})

	resp := s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(20)})
	if resp.Status != wire.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if len(resp.Values) != 1 || !reflect.DeepEqual(resp.Values[0], wire.IntValue(10)) {
		t.Errorf("got %+v, want prior value 10", resp.Values)
	}
}

func TestHgetMissingKeyIs404(t *testing.T) {
	s := newTestService()
	resp := s.Dispatch(context.Background(), wire.CommandRequest{Op: wire.OpHget, Table: "score", Key: "ghost"})
	if resp.Status != wire.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Status)
	}
}

func TestHgetPresentKey(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(99)})

	resp := s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHget, Table: "score", Key: "u1"})
	if resp.Status != wire.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if len(resp.Values) != 1 || !reflect.DeepEqual(resp.Values[0], wire.IntValue(99)) {
		t.Errorf("got %+v, want [99]", resp.Values)
	}
}

func TestHdelMissingKeyIs404(t *testing.T) {
	s := newTestService()
	resp := s.Dispatch(context.Background(), wire.CommandRequest{Op: wire.OpHdel, Table: "score", Key: "ghost"})
	if resp.Status != wire.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Status)
	}
}

func TestHexistNeverReturns404(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	resp := s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHexist, Table: "score", Key: "ghost"})
	if resp.Status != wire.StatusOK {
		t.Fatalf("status = %d, want 200 even for an absent key", resp.Status)
	}
	if len(resp.Values) != 1 || !reflect.DeepEqual(resp.Values[0], wire.BoolValue(false)) {
		t.Errorf("got %+v, want [false]", resp.Values)
	}

	s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(1)})
	resp = s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHexist, Table: "score", Key: "u1"})
	if resp.Status != wire.StatusOK || len(resp.Values) != 1 || !reflect.DeepEqual(resp.Values[0], wire.BoolValue(true)) {
		t.Errorf("got %+v, want [true]", resp.Values)
	}
}

func TestHmexistOnEmptyStoreReportsAllAbsent(t *testing.T) {
	s := newTestService()
	resp := s.Dispatch(context.Background(), wire.CommandRequest{
		Op: wire.OpHmexist, Table: "score", Keys: []string{"u1", "u2", "u3"},
	})
	if resp.Status != wire.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	got := sortedPairs(resp.Pairs)
	want := []wire.KvPair{wire.EmptyValue("u1"), wire.EmptyValue("u2"), wire.EmptyValue("u3")}
	for i, p := range want {
		if !reflect.DeepEqual(got[i], p) {
			t.Errorf("pair %d: got %+v, want %+v", i, got[i], p)
		}
	}
}

func TestHmgetMixedPresence(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(1)})

	resp := s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHmget, Table: "score", Keys: []string{"u1", "u2"}})
	if resp.Status != wire.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	got := sortedPairs(resp.Pairs)
	want := []wire.KvPair{wire.PresentValue("u1", wire.IntValue(1)), wire.EmptyValue("u2")}
	for i, p := range want {
		if !reflect.DeepEqual(got[i], p) {
			t.Errorf("pair %d: got %+v, want %+v", i, got[i], p)
		}
	}
}

func TestHmsetReportsPriorPerKey(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(1)})

	resp := s.Dispatch(ctx, wire.CommandRequest{
		Op: wire.OpHmset, Table: "score",
		Pairs: []wire.KvPair{
			wire.PresentValue("u1", wire.IntValue(2)),
			wire.PresentValue("u2", wire.IntValue(5)),
		},
	})
	if resp.Status != wire.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	got := sortedPairs(resp.Pairs)
	want := []wire.KvPair{wire.PresentValue("u1", wire.IntValue(1)), wire.EmptyValue("u2")}
	for i, p := range want {
		if !reflect.DeepEqual(got[i], p) {
			t.Errorf("pair %d: got %+v, want %+v", i, got[i], p)
		}
	}

	confirm := s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHget, Table: "score", Key: "u2"})
	if confirm.Status != wire.StatusOK || !reflect.DeepEqual(confirm.Values[0], wire.IntValue(5)) {
		t.Errorf("u2 was not actually set: %+v", confirm)
	}
}

func TestHmdelMixedPresence(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(1)})

	resp := s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHmdel, Table: "score", Keys: []string{"u1", "u2"}})
	got := sortedPairs(resp.Pairs)
	want := []wire.KvPair{wire.PresentValue("u1", wire.IntValue(1)), wire.EmptyValue("u2")}
	for i, p := range want {
		if !reflect.DeepEqual(got[i], p) {
			t.Errorf("pair %d: got %+v, want %+v", i, got[i], p)
		}
	}

	confirm := s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHexist, Table: "score", Key: "u1"})
	if !reflect.DeepEqual(confirm.Values[0], wire.BoolValue(false)) {
		t.Error("u1 should have been deleted by Hmdel")
	}
}

func TestHgetallAggregatesAllEntries(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(1)})
	s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u2", Value: wire.IntValue(2)})

	resp := s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHgetall, Table: "score"})
	if resp.Status != wire.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if len(resp.Pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(resp.Pairs))
	}
}

func TestDispatchUnknownOpIsInvalidCommand(t *testing.T) {
	s := newTestService()
	resp := s.Dispatch(context.Background(), wire.CommandRequest{Op: wire.OpUnknown})
	if resp.Status != wire.StatusInvalidCommand {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
}

func TestTablesAreIndependent(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHset, Table: "score", Key: "u1", Value: wire.IntValue(1)})

	resp := s.Dispatch(ctx, wire.CommandRequest{Op: wire.OpHget, Table: "other", Key: "u1"})
	if resp.Status != wire.StatusNotFound {
		t.Fatalf("status = %d, want 404: writes to one table must not leak into another", resp.Status)
	}
}
