package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskboard/internal/board"
	"github.com/hitoshi/taskboard/internal/model"
)

// BoardServiceInterface はボード・タスクハンドラーが必要とするサービスインターフェース。
type BoardServiceInterface interface {
	CreateBoard(ctx context.Context, userID, name, description string) (*model.BoardWithCount, error)
	ListBoards(ctx context.Context, userID string) ([]model.BoardWithCount, error)
	GetBoard(ctx context.Context, userID, boardID string) (*board.Detail, error)
	DeleteBoard(ctx context.Context, userID, boardID string) error
	CreateTask(ctx context.Context, userID, boardID string, in board.TaskInput) (*model.Task, error)
	ListTasks(ctx context.Context, userID, boardID string) ([]model.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, in board.TaskInput) (*model.Task, error)
	SetTaskCompleted(ctx context.Context, userID, taskID string, completed bool) (*model.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) error
}

// BoardHandler はボードとタスクのHTTPハンドラー。
type BoardHandler struct {
	service BoardServiceInterface
}

// NewBoardHandler はBoardHandlerを生成する。
func NewBoardHandler(service BoardServiceInterface) *BoardHandler {
	return &BoardHandler{service: service}
}

// createBoardRequest はボード作成リクエストのボディ。
type createBoardRequest struct {
	Name        string `json:"name" label:"ボード名" validate:"required,max=100"`
	Description string `json:"description" label:"説明" validate:"max=500"`
}

// taskRequest はタスク作成・全体更新リクエストのボディ。
// dueDateがnullまたは省略された場合、更新時は期限を削除する。
type taskRequest struct {
	Title       string  `json:"title" label:"タスク名" validate:"required,max=200"`
	Description string  `json:"description" label:"説明" validate:"max=2000"`
	DueDate     *string `json:"dueDate" label:"期限"`
}

// toggleTaskRequest はタスク完了切り替えリクエストのボディ。
type toggleTaskRequest struct {
	Completed *bool `json:"completed" label:"完了状態" validate:"required"`
}

func (req *taskRequest) input() (board.TaskInput, error) {
	due, apiErr := parseDueDate(req.DueDate)
	if apiErr != nil {
		return board.TaskInput{}, apiErr
	}
	return board.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     due,
	}, nil
}

// ListBoards はボード一覧を返す。
// GET /api/boards
func (h *BoardHandler) ListBoards() http.HandlerFunc {
	return endpoint(func(r *http.Request, user model.SessionUser, _ *noBody) (any, error) {
		boards, err := h.service.ListBoards(r.Context(), user.ID)
		if err != nil {
			return nil, err
		}
		return toBoardResponses(boards), nil
	})
}

// CreateBoard はボードを作成する。
// POST /api/boards
func (h *BoardHandler) CreateBoard() http.HandlerFunc {
	return endpoint(func(r *http.Request, user model.SessionUser, req *createBoardRequest) (any, error) {
		b, err := h.service.CreateBoard(r.Context(), user.ID, req.Name, req.Description)
		if err != nil {
			return nil, err
		}
		return toBoardResponse(*b), nil
	})
}

// GetBoard はボード詳細をタスク一覧付きで返す。
// GET /api/boards/{id}
func (h *BoardHandler) GetBoard() http.HandlerFunc {
	return endpoint(func(r *http.Request, user model.SessionUser, _ *noBody) (any, error) {
		detail, err := h.service.GetBoard(r.Context(), user.ID, chi.URLParam(r, "id"))
		if err != nil {
			return nil, err
		}
		return toBoardDetailResponse(detail), nil
	})
}

// DeleteBoard はボードと所属タスクを削除する。
// DELETE /api/boards/{id}
func (h *BoardHandler) DeleteBoard() http.HandlerFunc {
	return endpoint(func(r *http.Request, user model.SessionUser, _ *noBody) (any, error) {
		if err := h.service.DeleteBoard(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
			return nil, err
		}
		return deleted, nil
	})
}

// ListTasks はボードのタスク一覧を返す。
// GET /api/boards/{id}/tasks
func (h *BoardHandler) ListTasks() http.HandlerFunc {
	return endpoint(func(r *http.Request, user model.SessionUser, _ *noBody) (any, error) {
		tasks, err := h.service.ListTasks(r.Context(), user.ID, chi.URLParam(r, "id"))
		if err != nil {
			return nil, err
		}
		return toTaskResponses(tasks), nil
	})
}

// CreateTask はボードにタスクを作成する。
// POST /api/boards/{id}/tasks
func (h *BoardHandler) CreateTask() http.HandlerFunc {
	return endpoint(func(r *http.Request, user model.SessionUser, req *taskRequest) (any, error) {
		in, err := req.input()
		if err != nil {
			return nil, err
		}
		task, err := h.service.CreateTask(r.Context(), user.ID, chi.URLParam(r, "id"), in)
		if err != nil {
			return nil, err
		}
		return toTaskResponse(*task), nil
	})
}

// UpdateTask はタスクのタイトル・説明・期限を置き換える。
// PUT /api/boards/{id}/tasks/{taskId}
func (h *BoardHandler) UpdateTask() http.HandlerFunc {
	return endpoint(func(r *http.Request, user model.SessionUser, req *taskRequest) (any, error) {
		in, err := req.input()
		if err != nil {
			return nil, err
		}
		task, err := h.service.UpdateTask(r.Context(), user.ID, chi.URLParam(r, "taskId"), in)
		if err != nil {
			return nil, err
		}
		return toTaskResponse(*task), nil
	})
}

// ToggleTask はタスクの完了状態を切り替える。
// PATCH /api/boards/{id}/tasks/{taskId}
func (h *BoardHandler) ToggleTask() http.HandlerFunc {
	return endpoint(func(r *http.Request, user model.SessionUser, req *toggleTaskRequest) (any, error) {
		task, err := h.service.SetTaskCompleted(r.Context(), user.ID, chi.URLParam(r, "taskId"), *req.Completed)
		if err != nil {
			return nil, err
		}
		return toTaskResponse(*task), nil
	})
}

// DeleteTask はタスクを削除する。
// DELETE /api/boards/{id}/tasks/{taskId}
func (h *BoardHandler) DeleteTask() http.HandlerFunc {
	return endpoint(func(r *http.Request, user model.SessionUser, _ *noBody) (any, error) {
		if err := h.service.DeleteTask(r.Context(), user.ID, chi.URLParam(r, "taskId")); err != nil {
			return nil, err
		}
		return deleted, nil
	})
}
