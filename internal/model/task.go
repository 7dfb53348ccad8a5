// Package model はドメインモデルを定義する。
package model

import "time"

// Task はボードに属する作業単位を表す。
// UserIDはボード所有者のコピー（非正規化）。
type Task struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Completed   bool       `json:"completed" db:"completed"`
	BoardID     string     `json:"boardId" db:"board_id"`
	UserID      string     `json:"userId" db:"user_id"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	DueDate     *time.Time `json:"dueDate,omitempty" db:"due_date"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// TaskPatch はタスクの部分更新内容を表す。
// nilフィールドは変更せず、既存の値を維持する。
// ClearDueDateがtrueの場合は期限を削除する（DueDateより優先）。
type TaskPatch struct {
	Title        *string
	Description  *string
	Completed    *bool
	DueDate      *time.Time
	ClearDueDate bool
}

// Apply はパッチをタスクにマージする。
// UpdatedAtは常にnowに更新される。
// Completedがtrueの場合、CompletedAtが未設定のときだけnowを設定する（既存の完了日時は上書きしない）。
// Completedがfalseの場合はCompletedAtを削除する。
func (t *Task) Apply(p TaskPatch, now time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
		if t.Completed {
			if t.CompletedAt == nil {
				at := now
				t.CompletedAt = &at
			}
		} else {
			t.CompletedAt = nil
		}
	}
	t.UpdatedAt = now
}

// CompletedOnTime は期限内に完了したかどうかを返す。
// 完了日時と期限の両方が設定されており、完了日時が期限以前の場合のみtrue。
func (t *Task) CompletedOnTime() bool {
	if t.CompletedAt == nil || t.DueDate == nil {
		return false
	}
	return !t.CompletedAt.After(*t.DueDate)
}
