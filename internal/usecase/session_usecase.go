package usecase

import "CallCoordinator/internal/callsession"

type ActiveCallSource interface {
	ActiveCalls() []callsession.Session
}

type SessionUsecase struct {
	source ActiveCallSource
}

func NewSessionUsecase(source ActiveCallSource) *SessionUsecase {
	return &SessionUsecase{
		source: source,
	}
}

func (s *SessionUsecase) List() ([]callsession.Session, error) {
	return s.source.ActiveCalls(), nil
}
