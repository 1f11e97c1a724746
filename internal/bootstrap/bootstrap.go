package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/4747uwu/radportal/internal/config"
	"github.com/4747uwu/radportal/internal/core/ports"
	"github.com/4747uwu/radportal/internal/core/usecase"
	"github.com/4747uwu/radportal/internal/infrastructure/queue/nats"
	"github.com/4747uwu/radportal/internal/infrastructure/repository"
	"github.com/4747uwu/radportal/internal/infrastructure/repository/postgres"
	"github.com/4747uwu/radportal/internal/infrastructure/resilience"
)

type App struct {
	Config config.Config

	Bus  ports.EventBus
	Repo ports.StudyRepository

	RegisterUC    ports.StudyRegistrar
	TransitionUC  ports.WorkflowService
	ResetUC       ports.BaselineResetter
	DashboardUC   ports.DashboardService
	RecalculateUC ports.SnapshotRecalculator

	Executor *resilience.Executor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pgRepo := postgres.NewStudyRepository(db)
	if err := pgRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := repository.WithTimeout(pgRepo, time.Duration(cfg.StoreOpTimeoutMS)*time.Millisecond)

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	return &App{
		Config: cfg,
		Bus:    queue,
		Repo:   repo,

		RegisterUC:    usecase.NewRegisterUseCase(repo, queue),
		TransitionUC:  usecase.NewTransitionUseCase(repo, queue, cfg.TransitionMaxAttempts),
		ResetUC:       usecase.NewResetUseCase(repo, queue, cfg.TransitionMaxAttempts),
		DashboardUC:   usecase.NewDashboardUseCase(repo),
		RecalculateUC: usecase.NewRecalculateUseCase(repo),

		Executor: executor,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
