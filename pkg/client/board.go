package client

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

// Board is the cached column view of one project: tasks grouped by column,
// ordered by position. Boards are immutable; every change produces a new
// Board, which is what makes the optimistic snapshot/rollback pair exact.
type Board struct {
	Columns map[int64][]domain.Task
}

// Upsert returns a board with t inserted at its column/position, replacing
// any previous occurrence.
func (b Board) Upsert(t domain.Task) Board {
	next := b.Remove(t.ID)
	col := next.Columns[t.ColumnID]
	pos := t.Position
	if pos < 0 {
		pos = 0
	}
	if pos > len(col) {
		pos = len(col)
	}

	col = append(col[:pos], append([]domain.Task{t}, col[pos:]...)...)
	for i := range col {
		col[i].Position = i
	}
	next.Columns[t.ColumnID] = col
	return next
}

// Remove returns a board without the given task.
func (b Board) Remove(taskID uuid.UUID) Board {
	next := b.clone()
	for colID, col := range next.Columns {
		for i, t := range col {
			if t.ID == taskID {
				col = append(col[:i], col[i+1:]...)
				for j := range col {
					col[j].Position = j
				}
				if len(col) == 0 {
					delete(next.Columns, colID)
				} else {
					next.Columns[colID] = col
				}
				return next
			}
		}
	}
	return next
}

// Move returns a board with the task moved to toColumn at toPosition.
// Unknown tasks leave the board unchanged.
func (b Board) Move(taskID uuid.UUID, toColumn int64, toPosition int) Board {
	t, ok := b.find(taskID)
	if !ok {
		return b.clone()
	}
	t.ColumnID = toColumn
	t.Position = toPosition
	return b.Upsert(t)
}

// Tasks returns the ordered task list of one column.
func (b Board) Tasks(columnID int64) []domain.Task {
	return b.Columns[columnID]
}

func (b Board) find(taskID uuid.UUID) (domain.Task, bool) {
	for _, col := range b.Columns {
		for _, t := range col {
			if t.ID == taskID {
				return t, true
			}
		}
	}
	return domain.Task{}, false
}

func (b Board) clone() Board {
	next := Board{Columns: make(map[int64][]domain.Task, len(b.Columns))}
	for colID, col := range b.Columns {
		next.Columns[colID] = append([]domain.Task(nil), col...)
	}
	return next
}

// BoardView binds one project's Board to a cache key and keeps it current
// from broadcast events. Self-originated events are suppressed by the
// OnEvent registration; the local optimistic apply already covered them.
type BoardView struct {
	cache     *Cache
	projectID uuid.UUID
	key       string
}

func NewBoardView(cache *Cache, projectID uuid.UUID) *BoardView {
	return &BoardView{
		cache:     cache,
		projectID: projectID,
		key:       "board:" + projectID.String(),
	}
}

// Key is the cache key the view lives under; optimistic mutations against
// this board scope to it.
func (bv *BoardView) Key() string { return bv.key }

// Load seeds the view from a full task listing.
func (bv *BoardView) Load(tasks []*domain.Task) {
	board := Board{Columns: make(map[int64][]domain.Task)}
	for _, t := range tasks {
		board.Columns[t.ColumnID] = append(board.Columns[t.ColumnID], *t)
	}
	for colID, col := range board.Columns {
		sort.Slice(col, func(i, j int) bool { return col[i].Position < col[j].Position })
		for i := range col {
			col[i].Position = i
		}
		board.Columns[colID] = col
	}
	bv.cache.Set(bv.key, board)
}

// Board returns the current board snapshot.
func (bv *BoardView) Board() (Board, bool) {
	v, ok := bv.cache.Get(bv.key)
	if !ok {
		return Board{}, false
	}
	board, ok := v.(Board)
	return board, ok
}

// Subscribe registers the view's event handlers on c and returns a stop
// function. Events triggered by this session's own user are discarded.
func (bv *BoardView) Subscribe(c *Client) func() {
	type reg struct {
		typ   domain.EventType
		token int
	}
	regs := []reg{
		{typ: domain.EventTaskCreated},
		{typ: domain.EventTaskUpdated},
		{typ: domain.EventTaskMoved},
		{typ: domain.EventTaskDeleted},
	}
	for i := range regs {
		regs[i].token = c.OnEvent(regs[i].typ, bv.HandleEvent)
	}

	return func() {
		for _, r := range regs {
			c.Off(string(r.typ), r.token)
		}
	}
}

// HandleEvent applies one broadcast task event to the cached board.
func (bv *BoardView) HandleEvent(env wire.Envelope) {
	board, ok := bv.Board()
	if !ok {
		return
	}

	switch domain.EventType(env.Type) {
	case domain.EventTaskCreated, domain.EventTaskUpdated:
		var p domain.TaskPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Task == nil {
			log.Debug().Err(err).Str("type", env.Type).Msg("client: bad task payload")
			return
		}
		if p.Task.ProjectID != bv.projectID {
			return
		}
		bv.cache.Set(bv.key, board.Upsert(*p.Task))

	case domain.EventTaskMoved:
		var p domain.TaskMovedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Debug().Err(err).Msg("client: bad task moved payload")
			return
		}
		bv.cache.Set(bv.key, board.Move(p.TaskID, p.ToColumnID, p.ToPosition))

	case domain.EventTaskDeleted:
		var p domain.TaskPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Debug().Err(err).Msg("client: bad task payload")
			return
		}
		bv.cache.Set(bv.key, board.Remove(p.TaskID))
	}
}
