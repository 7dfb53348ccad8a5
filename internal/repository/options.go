package repository

import (
	"time"

	"github.com/google/uuid"
)

// Option はストア生成時のオプション。
type Option func(*storeOptions)

type storeOptions struct {
	now   func() time.Time
	newID func() string
}

func defaultOptions() storeOptions {
	return storeOptions{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func applyOptions(opts []Option) storeOptions {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock は作成・更新日時の採番に使う時計を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		o.now = now
	}
}

// WithIDGenerator はID採番関数を差し替える。テスト用。
func WithIDGenerator(newID func() string) Option {
	return func(o *storeOptions) {
		o.newID = newID
	}
}
