package usecase

import (
	"context"

	calljournal "CallCoordinator/internal/repository/call_journal"
)

type CallHistory interface {
	List(ctx context.Context, filter calljournal.ListFilter) ([]calljournal.CallJournal, error)
}

type CallJournalUsecase struct {
	repo CallHistory
}

func NewCallJournalUsecase(repo CallHistory) *CallJournalUsecase {
	return &CallJournalUsecase{
		repo: repo,
	}
}

func (c *CallJournalUsecase) List(ctx context.Context, filter calljournal.ListFilter) ([]calljournal.CallJournal, error) {
	return c.repo.List(ctx, filter)
}
