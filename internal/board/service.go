// Package board はボードとタスクの管理機能を提供する。
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
)

// Repository はボード管理に必要な永続化操作。
type Repository interface {
	repository.BoardRepository
	repository.TaskRepository
}

// TaskInput はタスク作成・全体更新の入力値を表す。
// DueDateがnilの場合、更新時は期限を削除する。
type TaskInput struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// Detail はボードと所属タスクを結合したドメインオブジェクト。
type Detail struct {
	Board model.Board
	Tasks []model.Task
}

// Service はボードとタスクのサービス層。
// 全ての操作はセッションユーザーのIDでスコープされる。
// 名前・タイトル・説明は入力されたまま保存する。
type Service struct {
	repo Repository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateBoard はボードを作成する。
// 名前が空白のみの場合はVALIDATION_ERRORを返す。
func (s *Service) CreateBoard(ctx context.Context, userID, name, description string) (*model.BoardWithCount, error) {
	if isBlank(name) {
		return nil, model.NewValidationError("ボード名を入力してください。")
	}

	board, err := s.repo.CreateBoard(ctx, model.Board{
		Name:        name,
		Description: description,
		UserID:      userID,
	})
	if err != nil {
		return nil, fmt.Errorf("ボードの作成に失敗しました: %w", err)
	}

	slog.Info("board created",
		slog.String("user_id", userID),
		slog.String("board_id", board.ID),
	)
	return board, nil
}

// ListBoards はユーザーのボード一覧をタスク数付きで返す。
func (s *Service) ListBoards(ctx context.Context, userID string) ([]model.BoardWithCount, error) {
	boards, err := s.repo.GetBoards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ボード一覧の取得に失敗しました: %w", err)
	}
	return boards, nil
}

// GetBoard はボードと所属タスクを返す。
func (s *Service) GetBoard(ctx context.Context, userID, boardID string) (*Detail, error) {
	board, err := s.findBoard(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.repo.GetTasks(ctx, boardID, userID)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}

	return &Detail{Board: *board, Tasks: tasks}, nil
}

// DeleteBoard はボードと、同じボードIDを持つ全タスクを削除する。
func (s *Service) DeleteBoard(ctx context.Context, userID, boardID string) error {
	err := s.repo.DeleteBoard(ctx, boardID, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.NewBoardNotFoundError(boardID)
	}
	if err != nil {
		return fmt.Errorf("ボードの削除に失敗しました: %w", err)
	}

	slog.Info("board deleted",
		slog.String("user_id", userID),
		slog.String("board_id", boardID),
	)
	return nil
}

// CreateTask はボードにタスクを作成する。
// ボードが存在しないか所有者が異なる場合はBOARD_NOT_FOUNDを返す。
func (s *Service) CreateTask(ctx context.Context, userID, boardID string, in TaskInput) (*model.Task, error) {
	if isBlank(in.Title) {
		return nil, model.NewValidationError("タスク名を入力してください。")
	}

	if _, err := s.findBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}

	task, err := s.repo.CreateTask(ctx, model.Task{
		Title:       in.Title,
		Description: in.Description,
		BoardID:     boardID,
		UserID:      userID,
		DueDate:     in.DueDate,
	})
	if err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return task, nil
}

// ListTasks はボードのタスク一覧を返す。
func (s *Service) ListTasks(ctx context.Context, userID, boardID string) ([]model.Task, error) {
	if _, err := s.findBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}

	tasks, err := s.repo.GetTasks(ctx, boardID, userID)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// UpdateTask はタスクのタイトル・説明・期限を置き換える。完了状態は変更しない。
func (s *Service) UpdateTask(ctx context.Context, userID, taskID string, in TaskInput) (*model.Task, error) {
	if isBlank(in.Title) {
		return nil, model.NewValidationError("タスク名を入力してください。")
	}

	patch := model.TaskPatch{
		Title:        &in.Title,
		Description:  &in.Description,
		DueDate:      in.DueDate,
		ClearDueDate: in.DueDate == nil,
	}
	return s.patchTask(ctx, userID, taskID, patch)
}

// SetTaskCompleted はタスクの完了状態を切り替える。
func (s *Service) SetTaskCompleted(ctx context.Context, userID, taskID string, completed bool) (*model.Task, error) {
	return s.patchTask(ctx, userID, taskID, model.TaskPatch{Completed: &completed})
}

// DeleteTask はタスクを削除する。
func (s *Service) DeleteTask(ctx context.Context, userID, taskID string) error {
	err := s.repo.DeleteTask(ctx, taskID, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) patchTask(ctx context.Context, userID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	task, err := s.repo.UpdateTask(ctx, taskID, userID, patch)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return task, nil
}

// findBoard は所有者が一致するボードを返す。見つからない場合はBOARD_NOT_FOUNDを返す。
func (s *Service) findBoard(ctx context.Context, userID, boardID string) (*model.Board, error) {
	board, err := s.repo.GetBoard(ctx, boardID, userID)
	if err != nil {
		return nil, fmt.Errorf("ボードの取得に失敗しました: %w", err)
	}
	if board == nil {
		return nil, model.NewBoardNotFoundError(boardID)
	}
	return board, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
