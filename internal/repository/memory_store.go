package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/taskboard/internal/model"
)

// MemoryStore はプロセスメモリ上に全コレクションを保持するストア。
// プロセス終了でデータは失われる。全ての変更は単一のロックで直列化される。
type MemoryStore struct {
	mu     sync.RWMutex
	users  []model.User
	boards []model.Board
	tasks  []model.Task
	opts   storeOptions
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{opts: applyOptions(opts)}
}

// CreateUser はユーザーを保存する。
func (s *MemoryStore) CreateUser(_ context.Context, user model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.ID = s.opts.newID()
	user.CreatedAt = s.opts.now()
	s.users = append(s.users, user)
	return &user, nil
}

// GetUserByEmail はメールアドレスが一致する最初のユーザーを返す。
func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findUserByEmail(s.users, email), nil
}

// GetUserByID は指定IDのユーザーを返す。
func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findUserByID(s.users, id), nil
}

// CreateBoard はボードを保存する。
func (s *MemoryStore) CreateBoard(_ context.Context, board model.Board) (*model.BoardWithCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board.ID = s.opts.newID()
	board.CreatedAt = s.opts.now()
	s.boards = append(s.boards, board)
	return &model.BoardWithCount{Board: board}, nil
}

// GetBoards はユーザーのボード一覧をタスク数付きで返す。
func (s *MemoryStore) GetBoards(_ context.Context, userID string) ([]model.BoardWithCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return boardsWithCount(s.boards, s.tasks, userID), nil
}

// GetBoard はIDと所有者が一致するボードを返す。
func (s *MemoryStore) GetBoard(_ context.Context, boardID, userID string) (*model.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findBoard(s.boards, boardID, userID), nil
}

// DeleteBoard はボードと、同じboardIdを持つ全タスクを削除する。
func (s *MemoryStore) DeleteBoard(_ context.Context, boardID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	boards, tasks, err := cascadeDeleteBoard(s.boards, s.tasks, boardID, userID)
	if err != nil {
		return err
	}
	s.boards, s.tasks = boards, tasks
	return nil
}

// CreateTask はタスクを保存する。
func (s *MemoryStore) CreateTask(_ context.Context, task model.Task) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareNewTask(&task, s.opts)
	s.tasks = append(s.tasks, task)
	return copyTask(task), nil
}

// GetTasks はボードIDと所有者が一致するタスク一覧を返す。
func (s *MemoryStore) GetTasks(_ context.Context, boardID, userID string) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterTasks(s.tasks, boardID, userID), nil
}

// UpdateTask はタスクにパッチをマージする。
func (s *MemoryStore) UpdateTask(_ context.Context, taskID, userID string, patch model.TaskPatch) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOfTask(s.tasks, taskID, userID)
	if i < 0 {
		return nil, model.ErrNotFound
	}
	s.tasks[i].Apply(patch, s.opts.now())
	return copyTask(s.tasks[i]), nil
}

// DeleteTask はIDと所有者が一致するタスクを削除する。
func (s *MemoryStore) DeleteTask(_ context.Context, taskID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOfTask(s.tasks, taskID, userID)
	if i < 0 {
		return model.ErrNotFound
	}
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	return nil
}

// Ping は常に成功する。
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
