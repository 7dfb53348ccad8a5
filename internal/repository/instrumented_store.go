package repository

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/taskboard/internal/model"
)

const tracerName = "github.com/hitoshi/taskboard/internal/repository"

// StoreRecorder はストア操作の計測結果を受け取るインターフェース。
// metrics.Collectorが実装する。
type StoreRecorder interface {
	RecordStoreOperation(operation string, err error, duration time.Duration)
}

// InstrumentedStore は任意のStoreをラップし、操作ごとにメトリクスとトレーススパンを記録する。
// model.ErrNotFoundは正常な結果として扱い、スパンをエラーにしない。
type InstrumentedStore struct {
	next     Store
	recorder StoreRecorder
	tracer   trace.Tracer
}

// NewInstrumentedStore はInstrumentedStoreを生成する。
// tpがnilの場合はグローバルのTracerProviderを使用する。recorderはnilでもよい。
func NewInstrumentedStore(next Store, recorder StoreRecorder, tp trace.TracerProvider) *InstrumentedStore {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &InstrumentedStore{
		next:     next,
		recorder: recorder,
		tracer:   tp.Tracer(tracerName),
	}
}

func (s *InstrumentedStore) observe(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	start := time.Now()

	return ctx, func(err error) {
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if errors.Is(err, model.ErrNotFound) {
			span.SetAttributes(attribute.Bool("store.not_found", true))
		}
		span.End()

		if s.recorder != nil {
			s.recorder.RecordStoreOperation(operation, err, time.Since(start))
		}
	}
}

// CreateUser はユーザーを保存する。
func (s *InstrumentedStore) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	ctx, done := s.observe(ctx, "CreateUser")
	u, err := s.next.CreateUser(ctx, user)
	done(err)
	return u, err
}

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (s *InstrumentedStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, done := s.observe(ctx, "GetUserByEmail")
	u, err := s.next.GetUserByEmail(ctx, email)
	done(err)
	return u, err
}

// GetUserByID はIDでユーザーを取得する。
func (s *InstrumentedStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	ctx, done := s.observe(ctx, "GetUserByID", attribute.String("user.id", id))
	u, err := s.next.GetUserByID(ctx, id)
	done(err)
	return u, err
}

// CreateBoard はボードを保存する。
func (s *InstrumentedStore) CreateBoard(ctx context.Context, board model.Board) (*model.BoardWithCount, error) {
	ctx, done := s.observe(ctx, "CreateBoard", attribute.String("user.id", board.UserID))
	b, err := s.next.CreateBoard(ctx, board)
	done(err)
	return b, err
}

// GetBoards はボード一覧を取得する。
func (s *InstrumentedStore) GetBoards(ctx context.Context, userID string) ([]model.BoardWithCount, error) {
	ctx, done := s.observe(ctx, "GetBoards", attribute.String("user.id", userID))
	b, err := s.next.GetBoards(ctx, userID)
	done(err)
	return b, err
}

// GetBoard はボードを取得する。
func (s *InstrumentedStore) GetBoard(ctx context.Context, boardID, userID string) (*model.Board, error) {
	ctx, done := s.observe(ctx, "GetBoard",
		attribute.String("board.id", boardID), attribute.String("user.id", userID))
	b, err := s.next.GetBoard(ctx, boardID, userID)
	done(err)
	return b, err
}

// DeleteBoard はボードを削除する。
func (s *InstrumentedStore) DeleteBoard(ctx context.Context, boardID, userID string) error {
	ctx, done := s.observe(ctx, "DeleteBoard",
		attribute.String("board.id", boardID), attribute.String("user.id", userID))
	err := s.next.DeleteBoard(ctx, boardID, userID)
	done(err)
	return err
}

// CreateTask はタスクを保存する。
func (s *InstrumentedStore) CreateTask(ctx context.Context, task model.Task) (*model.Task, error) {
	ctx, done := s.observe(ctx, "CreateTask",
		attribute.String("board.id", task.BoardID), attribute.String("user.id", task.UserID))
	t, err := s.next.CreateTask(ctx, task)
	done(err)
	return t, err
}

// GetTasks はタスク一覧を取得する。
func (s *InstrumentedStore) GetTasks(ctx context.Context, boardID, userID string) ([]model.Task, error) {
	ctx, done := s.observe(ctx, "GetTasks",
		attribute.String("board.id", boardID), attribute.String("user.id", userID))
	t, err := s.next.GetTasks(ctx, boardID, userID)
	done(err)
	return t, err
}

// UpdateTask はタスクを更新する。
func (s *InstrumentedStore) UpdateTask(ctx context.Context, taskID, userID string, patch model.TaskPatch) (*model.Task, error) {
	ctx, done := s.observe(ctx, "UpdateTask",
		attribute.String("task.id", taskID), attribute.String("user.id", userID))
	t, err := s.next.UpdateTask(ctx, taskID, userID, patch)
	done(err)
	return t, err
}

// DeleteTask はタスクを削除する。
func (s *InstrumentedStore) DeleteTask(ctx context.Context, taskID, userID string) error {
	ctx, done := s.observe(ctx, "DeleteTask",
		attribute.String("task.id", taskID), attribute.String("user.id", userID))
	err := s.next.DeleteTask(ctx, taskID, userID)
	done(err)
	return err
}

// Ping はバックエンドの疎通を確認する。
func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, done := s.observe(ctx, "Ping")
	err := s.next.Ping(ctx)
	done(err)
	return err
}

// compile-time interface check
var _ Store = (*InstrumentedStore)(nil)
