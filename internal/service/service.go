// Package service dispatches decoded CommandRequests to a store.Storage
// and assembles the resulting CommandResponse, normalizing every
// storage-layer error into a status code.
package service

import (
	"context"

	"github.com/kvservice/kv/internal/store"
	"github.com/kvservice/kv/internal/wire"
)

// Service is a sum-typed request router: one method per CommandRequest
// variant, selected by a switch over wire.Op in Dispatch. The switch is
// not checked for exhaustiveness by the compiler: an Op without a case
// falls through to the default branch and is answered with 400.
type Service struct {
	storage store.Storage
}

// New builds a Service over storage. The service never touches the
// memory implementation directly — storage is passed as the Storage
// capability so alternative backends plug in without touching dispatch.
func New(storage store.Storage) *Service {
	return &Service{storage: storage}
}

// Dispatch executes req against the service's storage and returns the
// response to send back. It never returns a Go error: every failure is
// folded into the response's Status/Message per the propagation policy
// (errors inside the command service stay inside the exchange).
func (s *Service) Dispatch(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	switch req.Op {
	case wire.OpHset:
		return s.hset(ctx, req)
	case wire.OpHget:
		return s.hget(ctx, req)
	case wire.OpHgetall:
		return s.hgetall(ctx, req)
	case wire.OpHmget:
		return s.hmget(ctx, req)
	case wire.OpHmset:
		return s.hmset(ctx, req)
	case wire.OpHdel:
		return s.hdel(ctx, req)
	case wire.OpHmdel:
		return s.hmdel(ctx, req)
	case wire.OpHexist:
		return s.hexist(ctx, req)
	case wire.OpHmexist:
		return s.hmexist(ctx, req)
	default:
		return wire.ErrorResponse(wire.StatusInvalidCommand, "invalid command: unknown or missing variant")
	}
}

func (s *Service) hset(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	prior, existed, err := s.storage.Set(ctx, req.Table, req.Key, req.Value)
	if err != nil {
		return internalError(err)
	}
	if !existed {
		// Value::default() sentinel: the key did not previously exist.
		return wire.OKValues(wire.Value{})
	}
	return wire.OKValues(prior)
}

func (s *Service) hget(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	v, ok, err := s.storage.Get(ctx, req.Table, req.Key)
	if err != nil {
		return internalError(err)
	}
	if !ok {
		return notFound(req.Table, req.Key)
	}
	return wire.OKValues(v)
}

func (s *Service) hgetall(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	entries, err := s.storage.GetAll(ctx, req.Table)
	if err != nil {
		return internalError(err)
	}
	pairs := make([]wire.KvPair, len(entries))
	for i, e := range entries {
		pairs[i] = wire.PresentValue(e.Key, e.Value)
	}
	return wire.OKPairs(pairs)
}

func (s *Service) hmget(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	pairs := make([]wire.KvPair, 0, len(req.Keys))
	for _, key := range req.Keys {
		v, ok, err := s.storage.Get(ctx, req.Table, key)
		if err != nil {
			// Any storage error in a multi-op short-circuits; partial
			// results are never surfaced.
			return internalError(err)
		}
		if !ok {
			pairs = append(pairs, wire.EmptyValue(key))
			continue
		}
		pairs = append(pairs, wire.PresentValue(key, v))
	}
	return wire.OKPairs(pairs)
}

func (s *Service) hmset(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	pairs := make([]wire.KvPair, 0, len(req.Pairs))
	for _, in := range req.Pairs {
		prior, existed, err := s.storage.Set(ctx, req.Table, in.Key, in.Value)
		if err != nil {
			return internalError(err)
		}
		if !existed {
			pairs = append(pairs, wire.EmptyValue(in.Key))
			continue
		}
		pairs = append(pairs, wire.PresentValue(in.Key, prior))
	}
	return wire.OKPairs(pairs)
}

func (s *Service) hdel(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	removed, ok, err := s.storage.Del(ctx, req.Table, req.Key)
	if err != nil {
		return internalError(err)
	}
	if !ok {
		return notFound(req.Table, req.Key)
	}
	return wire.OKValues(removed)
}

func (s *Service) hmdel(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	pairs := make([]wire.KvPair, 0, len(req.Keys))
	for _, key := range req.Keys {
		v, ok, err := s.storage.Del(ctx, req.Table, key)
		if err != nil {
			return internalError(err)
		}
		if !ok {
			pairs = append(pairs, wire.EmptyValue(key))
			continue
		}
		pairs = append(pairs, wire.PresentValue(key, v))
	}
	return wire.OKPairs(pairs)
}

func (s *Service) hexist(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	_, ok, err := s.storage.Get(ctx, req.Table, req.Key)
	if err != nil {
		return internalError(err)
	}
	// Hexist reports true/false and never 404, unlike Hget.
	return wire.OKValues(wire.BoolValue(ok))
}

func (s *Service) hmexist(ctx context.Context, req wire.CommandRequest) wire.CommandResponse {
	pairs := make([]wire.KvPair, 0, len(req.Keys))
	for _, key := range req.Keys {
		v, ok, err := s.storage.Get(ctx, req.Table, key)
		if err != nil {
			return internalError(err)
		}
		if !ok {
			pairs = append(pairs, wire.EmptyValue(key))
			continue
		}
		pairs = append(pairs, wire.PresentValue(key, v))
	}
	return wire.OKPairs(pairs)
}

func notFound(table, key string) wire.CommandResponse {
	return wire.ErrorResponse(wire.StatusNotFound, "not found: table="+table+" key="+key)
}

func internalError(err error) wire.CommandResponse {
	return wire.ErrorResponse(wire.StatusInternal, err.Error())
}
