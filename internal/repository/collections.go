package repository

import "github.com/hitoshi/taskboard/internal/model"

// メモリストアとファイルストアが共有するスライス操作。
// 呼び出し側がロックを保持していることを前提とする。

func findUserByEmail(users []model.User, email string) *model.User {
	for i := range users {
		if users[i].Email == email {
			u := users[i]
			return &u
		}
	}
	return nil
}

func findUserByID(users []model.User, id string) *model.User {
	for i := range users {
		if users[i].ID == id {
			u := users[i]
			return &u
		}
	}
	return nil
}

func findBoard(boards []model.Board, boardID, userID string) *model.Board {
	for i := range boards {
		if boards[i].ID == boardID && boards[i].UserID == userID {
			b := boards[i]
			return &b
		}
	}
	return nil
}

// boardsWithCount はuserIDのボードを作成順に返す。
// タスク数はboardIdのみで数える。
func boardsWithCount(boards []model.Board, tasks []model.Task, userID string) []model.BoardWithCount {
	counts := make(map[string]int)
	for _, t := range tasks {
		counts[t.BoardID]++
	}

	result := make([]model.BoardWithCount, 0)
	for _, b := range boards {
		if b.UserID != userID {
			continue
		}
		result = append(result, model.BoardWithCount{Board: b, TaskCount: counts[b.ID]})
	}
	return result
}

// cascadeDeleteBoard はボードと同じboardIdを持つ全タスクを除いた新しいスライスを返す。
// 元のスライスは変更しない。
func cascadeDeleteBoard(boards []model.Board, tasks []model.Task, boardID, userID string) ([]model.Board, []model.Task, error) {
	idx := -1
	for i := range boards {
		if boards[i].ID == boardID && boards[i].UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, model.ErrNotFound
	}

	keptBoards := make([]model.Board, 0, len(boards)-1)
	keptBoards = append(keptBoards, boards[:idx]...)
	keptBoards = append(keptBoards, boards[idx+1:]...)

	keptTasks := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.BoardID != boardID {
			keptTasks = append(keptTasks, t)
		}
	}
	return keptBoards, keptTasks, nil
}

func filterTasks(tasks []model.Task, boardID, userID string) []model.Task {
	result := make([]model.Task, 0)
	for _, t := range tasks {
		if t.BoardID == boardID && t.UserID == userID {
			result = append(result, *copyTask(t))
		}
	}
	return result
}

func indexOfTask(tasks []model.Task, taskID, userID string) int {
	for i := range tasks {
		if tasks[i].ID == taskID && tasks[i].UserID == userID {
			return i
		}
	}
	return -1
}

func prepareNewTask(task *model.Task, opts storeOptions) {
	now := opts.now()
	task.ID = opts.newID()
	task.Completed = false
	task.CompletedAt = nil
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.DueDate != nil {
		d := *task.DueDate
		task.DueDate = &d
	}
}

// copyTask はポインタフィールドを含めてタスクを複製する。
// 呼び出し側に返した値からストア内部の状態が書き換えられないようにする。
func copyTask(t model.Task) *model.Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	return &t
}
