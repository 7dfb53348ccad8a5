package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hitoshi/taskboard/internal/model"
)

type recordedOperation struct {
	operation string
	err       error
}

type fakeStoreRecorder struct {
	mu   sync.Mutex
	ops  []recordedOperation
	durs []time.Duration
}

func (r *fakeStoreRecorder) RecordStoreOperation(operation string, err error, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOperation{operation: operation, err: err})
	r.durs = append(r.durs, d)
}

// failingStore は全ての操作でエラーを返すStore。
type failingStore struct {
	Store
	err error
}

func (s *failingStore) GetBoards(context.Context, string) ([]model.BoardWithCount, error) {
	return nil, s.err
}

func setupInstrumentedStore(t *testing.T, next Store) (*InstrumentedStore, *fakeStoreRecorder, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
	})

	recorder := &fakeStoreRecorder{}
	return NewInstrumentedStore(next, recorder, tp), recorder, exporter
}

func TestInstrumentedStore_RecordsSpanAndMetric(t *testing.T) {
	s, recorder, exporter := setupInstrumentedStore(t, NewMemoryStore())

	board, err := s.CreateBoard(context.Background(), model.Board{Name: "Work", UserID: "user-a"})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	if board.Name != "Work" {
		t.Errorf("Name = %q, want %q", board.Name, "Work")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	if spans[0].Name != "store.CreateBoard" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "store.CreateBoard")
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("span status = Error, want unset")
	}
	attrs := make(map[string]any)
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["user.id"] != "user-a" {
		t.Errorf("user.id attribute = %v, want user-a", attrs["user.id"])
	}

	if len(recorder.ops) != 1 || recorder.ops[0].operation != "CreateBoard" || recorder.ops[0].err != nil {
		t.Errorf("recorded = %+v, want one successful CreateBoard", recorder.ops)
	}
}

func TestInstrumentedStore_NotFoundIsNotSpanError(t *testing.T) {
	s, recorder, exporter := setupInstrumentedStore(t, NewMemoryStore())

	err := s.DeleteTask(context.Background(), "missing", "user-a")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("DeleteTask() error = %v, want ErrNotFound", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("span status = Error for not-found result")
	}
	if len(recorder.ops) != 1 || !errors.Is(recorder.ops[0].err, model.ErrNotFound) {
		t.Errorf("recorded = %+v, want ErrNotFound", recorder.ops)
	}
}

func TestInstrumentedStore_StorageErrorMarksSpan(t *testing.T) {
	storageErr := errors.New("disk full")
	s, recorder, exporter := setupInstrumentedStore(t, &failingStore{Store: NewMemoryStore(), err: storageErr})

	_, err := s.GetBoards(context.Background(), "user-a")
	if !errors.Is(err, storageErr) {
		t.Fatalf("GetBoards() error = %v, want %v", err, storageErr)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
	if len(spans[0].Events) == 0 {
		t.Error("span has no recorded error event")
	}
	if len(recorder.ops) != 1 || !errors.Is(recorder.ops[0].err, storageErr) {
		t.Errorf("recorded = %+v, want storage error", recorder.ops)
	}
}

func TestInstrumentedStore_NilRecorder(t *testing.T) {
	s := NewInstrumentedStore(NewMemoryStore(), nil, nil)

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
