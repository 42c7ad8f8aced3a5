package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbu/realtime/pkg/domain"
)

type Store struct {
	pool     *pgxpool.Pool
	users    *UserRepo
	tasks    *TaskRepo
	comments *CommentRepo
	subtasks *SubtaskRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:     pool,
		users:    NewUserRepo(pool),
		tasks:    NewTaskRepo(pool),
		comments: NewCommentRepo(pool),
		subtasks: NewSubtaskRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Users() domain.UserRepository       { return s.users }
func (s *Store) Tasks() domain.TaskRepository       { return s.tasks }
func (s *Store) Comments() domain.CommentRepository { return s.comments }
func (s *Store) Subtasks() domain.SubtaskRepository { return s.subtasks }
