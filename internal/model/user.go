// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 登録後は変更されず、削除もされない。
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"passwordHash" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// SessionUser はセッショントークンから復元されるユーザー識別情報を表す。
// パスワードハッシュを含まないため、リクエストスコープで安全に持ち回れる。
type SessionUser struct {
	ID    string
	Name  string
	Email string
}
