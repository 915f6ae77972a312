package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"docproc/pkg/queue"
)

type fakeQueue struct {
	stats    queue.Stats
	statsErr error
}

func (f *fakeQueue) Enqueue(context.Context, string, string) (queue.Job, error) {
	return queue.Job{}, errors.New("not implemented")
}

func (f *fakeQueue) Start(context.Context, int, queue.Handler) {}

func (f *fakeQueue) Subscribe(queue.Events) {}

func (f *fakeQueue) Stats(context.Context) (queue.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeQueue) Close() error { return nil }

func TestHealthz(t *testing.T) {
	srv := New(Config{Queue: &fakeQueue{}})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStatsReturnsQueueSnapshot(t *testing.T) {
	srv := New(Config{Queue: &fakeQueue{stats: queue.Stats{Waiting: 2, Active: 1, Completed: 9, Failed: 3}}})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got queue.Stats
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if got.Waiting != 2 || got.Active != 1 || got.Completed != 9 || got.Failed != 3 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestStatsQueueUnavailable(t *testing.T) {
	srv := New(Config{Queue: &fakeQueue{statsErr: errors.New("down")}})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
