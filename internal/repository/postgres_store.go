package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/taskboard/internal/model"
)

var (
	userColumns  = []string{"id", "name", "email", "password_hash", "created_at"}
	boardColumns = []string{"id", "name", "description", "user_id", "created_at"}
	taskColumns  = []string{
		"id", "title", "description", "completed", "board_id", "user_id",
		"created_at", "updated_at", "due_date", "completed_at",
	}
)

// taskCountColumn はボードに属するタスク数を数えるサブクエリ。
// タスクの所有者では絞り込まない。
const taskCountColumn = "(SELECT COUNT(*) FROM tasks t WHERE t.board_id = b.id) AS task_count"

// PostgresStore はPostgreSQLを使用したストア。
// クエリはsquirrelで組み立て、sqlxで実行する。
type PostgresStore struct {
	db   *sqlx.DB
	sq   squirrel.StatementBuilderType
	opts storeOptions
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sqlx.DB, opts ...Option) *PostgresStore {
	return &PostgresStore{
		db:   db,
		sq:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		opts: applyOptions(opts),
	}
}

// CreateUser はユーザーを保存する。
func (s *PostgresStore) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	user.ID = s.opts.newID()
	user.CreatedAt = s.opts.now()

	query, args, err := s.sq.Insert("users").
		Columns(userColumns...).
		Values(user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert user query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail はメールアドレスが一致する最初のユーザーを返す。見つからない場合はnilを返す。
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query, args, err := s.sq.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"email": email}).
		OrderBy("created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user by email query: %w", err)
	}

	var user model.User
	err = s.db.GetContext(ctx, &user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &user, nil
}

// GetUserByID は指定IDのユーザーを返す。見つからない場合はnilを返す。
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query, args, err := s.sq.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user by ID query: %w", err)
	}

	var user model.User
	err = s.db.GetContext(ctx, &user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return &user, nil
}

// CreateBoard はボードを保存する。
func (s *PostgresStore) CreateBoard(ctx context.Context, board model.Board) (*model.BoardWithCount, error) {
	board.ID = s.opts.newID()
	board.CreatedAt = s.opts.now()

	query, args, err := s.sq.Insert("boards").
		Columns(boardColumns...).
		Values(board.ID, board.Name, board.Description, board.UserID, board.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert board query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert board: %w", err)
	}
	return &model.BoardWithCount{Board: board}, nil
}

// GetBoards はユーザーのボード一覧を作成順にタスク数付きで返す。
func (s *PostgresStore) GetBoards(ctx context.Context, userID string) ([]model.BoardWithCount, error) {
	columns := make([]string, 0, len(boardColumns)+1)
	for _, c := range boardColumns {
		columns = append(columns, "b."+c)
	}
	columns = append(columns, taskCountColumn)

	query, args, err := s.sq.Select(columns...).
		From("boards b").
		Where(squirrel.Eq{"b.user_id": userID}).
		OrderBy("b.created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list boards query: %w", err)
	}

	boards := make([]model.BoardWithCount, 0)
	if err := s.db.SelectContext(ctx, &boards, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	return boards, nil
}

// GetBoard はIDと所有者が一致するボードを返す。見つからない場合はnilを返す。
func (s *PostgresStore) GetBoard(ctx context.Context, boardID, userID string) (*model.Board, error) {
	query, args, err := s.sq.Select(boardColumns...).
		From("boards").
		Where(squirrel.Eq{"id": boardID}).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get board query: %w", err)
	}

	var board model.Board
	err = s.db.GetContext(ctx, &board, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	return &board, nil
}

// DeleteBoard はボードと、同じboard_idを持つ全タスクを同一トランザクションで削除する。
func (s *PostgresStore) DeleteBoard(ctx context.Context, boardID, userID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := s.sq.Delete("boards").
		Where(squirrel.Eq{"id": boardID}).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete board query: %w", err)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete board: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrNotFound
	}

	// タスクの所有者は再確認しない
	query, args, err = s.sq.Delete("tasks").
		Where(squirrel.Eq{"board_id": boardID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete tasks query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete board tasks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateTask はタスクを保存する。
func (s *PostgresStore) CreateTask(ctx context.Context, task model.Task) (*model.Task, error) {
	prepareNewTask(&task, s.opts)

	query, args, err := s.sq.Insert("tasks").
		Columns(taskColumns...).
		Values(
			task.ID, task.Title, task.Description, task.Completed, task.BoardID, task.UserID,
			task.CreatedAt, task.UpdatedAt, task.DueDate, task.CompletedAt,
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert task query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return &task, nil
}

// GetTasks はボードIDと所有者が一致するタスク一覧を作成順に返す。
func (s *PostgresStore) GetTasks(ctx context.Context, boardID, userID string) ([]model.Task, error) {
	query, args, err := s.sq.Select(taskColumns...).
		From("tasks").
		Where(squirrel.Eq{"board_id": boardID}).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list tasks query: %w", err)
	}

	tasks := make([]model.Task, 0)
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask は行ロックを取得したタスクにパッチをマージして保存する。
func (s *PostgresStore) UpdateTask(ctx context.Context, taskID, userID string, patch model.TaskPatch) (*model.Task, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := s.sq.Select(taskColumns...).
		From("tasks").
		Where(squirrel.Eq{"id": taskID}).
		Where(squirrel.Eq{"user_id": userID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select task query: %w", err)
	}

	var task model.Task
	err = tx.GetContext(ctx, &task, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select task: %w", err)
	}

	task.Apply(patch, s.opts.now())

	query, args, err = s.sq.Update("tasks").
		Set("title", task.Title).
		Set("description", task.Description).
		Set("completed", task.Completed).
		Set("due_date", task.DueDate).
		Set("completed_at", task.CompletedAt).
		Set("updated_at", task.UpdatedAt).
		Where(squirrel.Eq{"id": task.ID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update task query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &task, nil
}

// DeleteTask はIDと所有者が一致するタスクを削除する。
func (s *PostgresStore) DeleteTask(ctx context.Context, taskID, userID string) error {
	query, args, err := s.sq.Delete("tasks").
		Where(squirrel.Eq{"id": taskID}).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete task query: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
