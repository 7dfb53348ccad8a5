package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/hitoshi/taskboard/internal/model"
)

// ファイルストアが扱うコレクションのファイル名
const (
	usersFile  = "users.json"
	boardsFile = "boards.json"
	tasksFile  = "tasks.json"
)

// FileStore はデータディレクトリ配下のJSONファイルに各コレクションを保存するストア。
//
// 変更操作はコレクション全体を読み込み、変更を適用し、全体を書き戻す。
// 書き込みは一時ファイルへ出力してからリネームするため、途中で失敗しても
// 既存のファイルが壊れることはない。読み書きは単一のロックで直列化される。
type FileStore struct {
	mu   sync.Mutex
	dir  string
	opts storeOptions
}

// NewFileStore はFileStoreを生成する。
// データディレクトリは最初の書き込み時に作成される。
func NewFileStore(dir string, opts ...Option) *FileStore {
	return &FileStore{dir: dir, opts: applyOptions(opts)}
}

// CreateUser はユーザーを保存する。
func (s *FileStore) CreateUser(_ context.Context, user model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []model.User
	if err := s.load(usersFile, &users); err != nil {
		return nil, err
	}
	user.ID = s.opts.newID()
	user.CreatedAt = s.opts.now()
	users = append(users, user)
	if err := s.save(usersFile, users); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail はメールアドレスが一致する最初のユーザーを返す。
func (s *FileStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []model.User
	if err := s.load(usersFile, &users); err != nil {
		return nil, err
	}
	return findUserByEmail(users, email), nil
}

// GetUserByID は指定IDのユーザーを返す。
func (s *FileStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []model.User
	if err := s.load(usersFile, &users); err != nil {
		return nil, err
	}
	return findUserByID(users, id), nil
}

// CreateBoard はボードを保存する。
func (s *FileStore) CreateBoard(_ context.Context, board model.Board) (*model.BoardWithCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var boards []model.Board
	if err := s.load(boardsFile, &boards); err != nil {
		return nil, err
	}
	board.ID = s.opts.newID()
	board.CreatedAt = s.opts.now()
	boards = append(boards, board)
	if err := s.save(boardsFile, boards); err != nil {
		return nil, err
	}
	return &model.BoardWithCount{Board: board}, nil
}

// GetBoards はユーザーのボード一覧をタスク数付きで返す。
func (s *FileStore) GetBoards(_ context.Context, userID string) ([]model.BoardWithCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var boards []model.Board
	if err := s.load(boardsFile, &boards); err != nil {
		return nil, err
	}
	var tasks []model.Task
	if err := s.load(tasksFile, &tasks); err != nil {
		return nil, err
	}
	return boardsWithCount(boards, tasks, userID), nil
}

// GetBoard はIDと所有者が一致するボードを返す。
func (s *FileStore) GetBoard(_ context.Context, boardID, userID string) (*model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var boards []model.Board
	if err := s.load(boardsFile, &boards); err != nil {
		return nil, err
	}
	return findBoard(boards, boardID, userID), nil
}

// DeleteBoard はボードと、同じboardIdを持つ全タスクを削除する。
// tasks.jsonを先に書き込むため、途中で失敗してもタスクだけが残ったボードは生じない。
func (s *FileStore) DeleteBoard(_ context.Context, boardID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var boards []model.Board
	if err := s.load(boardsFile, &boards); err != nil {
		return err
	}
	var tasks []model.Task
	if err := s.load(tasksFile, &tasks); err != nil {
		return err
	}

	keptBoards, keptTasks, err := cascadeDeleteBoard(boards, tasks, boardID, userID)
	if err != nil {
		return err
	}
	if err := s.save(tasksFile, keptTasks); err != nil {
		return err
	}
	return s.save(boardsFile, keptBoards)
}

// CreateTask はタスクを保存する。
func (s *FileStore) CreateTask(_ context.Context, task model.Task) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []model.Task
	if err := s.load(tasksFile, &tasks); err != nil {
		return nil, err
	}
	prepareNewTask(&task, s.opts)
	tasks = append(tasks, task)
	if err := s.save(tasksFile, tasks); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTasks はボードIDと所有者が一致するタスク一覧を返す。
func (s *FileStore) GetTasks(_ context.Context, boardID, userID string) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []model.Task
	if err := s.load(tasksFile, &tasks); err != nil {
		return nil, err
	}
	return filterTasks(tasks, boardID, userID), nil
}

// UpdateTask はタスクにパッチをマージする。
func (s *FileStore) UpdateTask(_ context.Context, taskID, userID string, patch model.TaskPatch) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []model.Task
	if err := s.load(tasksFile, &tasks); err != nil {
		return nil, err
	}
	i := indexOfTask(tasks, taskID, userID)
	if i < 0 {
		return nil, model.ErrNotFound
	}
	tasks[i].Apply(patch, s.opts.now())
	if err := s.save(tasksFile, tasks); err != nil {
		return nil, err
	}
	return copyTask(tasks[i]), nil
}

// DeleteTask はIDと所有者が一致するタスクを削除する。
func (s *FileStore) DeleteTask(_ context.Context, taskID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []model.Task
	if err := s.load(tasksFile, &tasks); err != nil {
		return err
	}
	i := indexOfTask(tasks, taskID, userID)
	if i < 0 {
		return model.ErrNotFound
	}
	tasks = append(tasks[:i], tasks[i+1:]...)
	return s.save(tasksFile, tasks)
}

// Ping はデータディレクトリを作成できることを確認する。
func (s *FileStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureDir()
}

func (s *FileStore) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// load はコレクションファイルを読み込む。ファイルが存在しない場合は空のコレクションとして扱う。
func (s *FileStore) load(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// save はコレクション全体を一時ファイルに書き出し、リネームで置き換える。
func (s *FileStore) save(name string, v any) error {
	if err := s.ensureDir(); err != nil {
		return err
	}

	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*FileStore)(nil)
