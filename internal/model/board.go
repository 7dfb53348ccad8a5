// Package model はドメインモデルを定義する。
package model

import "time"

// Board はユーザーが所有するタスクの集まりを表す。
type Board struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	UserID      string    `json:"userId" db:"user_id"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// BoardWithCount はボードと所属タスク数を結合したモデル。
// TaskCountはboardIdが一致するタスクの件数で、タスクの所有者では絞り込まない。
type BoardWithCount struct {
	Board
	TaskCount int `db:"task_count"`
}
