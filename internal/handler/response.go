package handler

import (
	"time"

	"github.com/hitoshi/taskboard/internal/board"
	"github.com/hitoshi/taskboard/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// boardResponse はボードのAPIレスポンス。
type boardResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	TaskCount   int       `json:"taskCount"`
}

// boardDetailResponse はタスク一覧を含むボード詳細のAPIレスポンス。
type boardDetailResponse struct {
	boardResponse
	Tasks []taskResponse `json:"tasks"`
}

// taskResponse はタスクのAPIレスポンス。
type taskResponse struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Completed       bool       `json:"completed"`
	BoardID         string     `json:"boardId"`
	UserID          string     `json:"userId"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CompletedOnTime bool       `json:"completedOnTime"`
}

func toUserResponse(u model.SessionUser) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

func toBoardResponse(b model.BoardWithCount) boardResponse {
	return boardResponse{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		UserID:      b.UserID,
		CreatedAt:   b.CreatedAt,
		TaskCount:   b.TaskCount,
	}
}

func toBoardResponses(boards []model.BoardWithCount) []boardResponse {
	out := make([]boardResponse, 0, len(boards))
	for _, b := range boards {
		out = append(out, toBoardResponse(b))
	}
	return out
}

// toBoardDetailResponse はボード詳細を変換する。taskCountは返却するタスク数とする。
func toBoardDetailResponse(d *board.Detail) boardDetailResponse {
	return boardDetailResponse{
		boardResponse: toBoardResponse(model.BoardWithCount{Board: d.Board, TaskCount: len(d.Tasks)}),
		Tasks:         toTaskResponses(d.Tasks),
	}
}

func toTaskResponse(t model.Task) taskResponse {
	return taskResponse{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Completed:       t.Completed,
		BoardID:         t.BoardID,
		UserID:          t.UserID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		DueDate:         t.DueDate,
		CompletedAt:     t.CompletedAt,
		CompletedOnTime: t.CompletedOnTime(),
	}
}

func toTaskResponses(tasks []model.Task) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	return out
}
