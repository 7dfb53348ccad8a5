// Package repository はデータ永続化のインターフェースと実装を提供する。
//
// メモリ、JSONファイル、PostgreSQLの3種類のバックエンドがあり、
// いずれも同一のStoreインターフェースを満たす。
package repository

import (
	"context"

	"github.com/hitoshi/taskboard/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// CreateUser はIDと作成日時を採番してユーザーを保存する。
	// メールアドレスの一意性はここでは検証しない。
	CreateUser(ctx context.Context, user model.User) (*model.User, error)

	// GetUserByEmail はメールアドレスが一致する最初のユーザーを返す。見つからない場合はnilを返す。
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// GetUserByID は指定IDのユーザーを返す。見つからない場合はnilを返す。
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// BoardRepository はボードデータの永続化インターフェース。
type BoardRepository interface {
	// CreateBoard はIDと作成日時を採番してボードを保存し、タスク数0を付けて返す。
	CreateBoard(ctx context.Context, board model.Board) (*model.BoardWithCount, error)

	// GetBoards はユーザーが所有するボード一覧をタスク数付きで返す。
	// タスク数はboardIdのみで数え、タスクの所有者では絞り込まない。
	GetBoards(ctx context.Context, userID string) ([]model.BoardWithCount, error)

	// GetBoard はIDと所有者が一致するボードを返す。見つからない場合はnilを返す。
	GetBoard(ctx context.Context, boardID, userID string) (*model.Board, error)

	// DeleteBoard は所有者が一致するボードを削除し、同じboardIdを持つタスクを全て削除する。
	// タスクの所有者は再確認しない。ボードが見つからない場合はmodel.ErrNotFoundを返し、何も削除しない。
	DeleteBoard(ctx context.Context, boardID, userID string) error
}

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// CreateTask はIDを採番し、completed=false、作成・更新日時を現在時刻にしてタスクを保存する。
	CreateTask(ctx context.Context, task model.Task) (*model.Task, error)

	// GetTasks はボードIDと所有者が一致するタスク一覧を返す。
	GetTasks(ctx context.Context, boardID, userID string) ([]model.Task, error)

	// UpdateTask はIDと所有者が一致するタスクにパッチをマージして保存する。
	// 見つからない場合はmodel.ErrNotFoundを返す。
	UpdateTask(ctx context.Context, taskID, userID string, patch model.TaskPatch) (*model.Task, error)

	// DeleteTask はIDと所有者が一致するタスクを削除する。
	// 見つからない場合はmodel.ErrNotFoundを返す。
	DeleteTask(ctx context.Context, taskID, userID string) error
}

// Store は全コレクションを扱う永続化ストア。
type Store interface {
	UserRepository
	BoardRepository
	TaskRepository

	// Ping はバックエンドが利用可能かどうかを確認する。
	Ping(ctx context.Context) error
}
