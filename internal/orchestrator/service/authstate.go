package service

import (
	"context"

	"github.com/blocksettle/ledgerbridge/internal/orchestrator/domain"
	"go.uber.org/zap"
)

func (s *Service) halted() bool {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.authState == domain.AuthStateHalted
}

// recoverAuth runs exactly one refresh attempt after an unauthorized
// response. Failure moves the whole service to halted; concurrent callers
// that arrive during a refresh share its result by re-checking the state.
func (s *Service) recoverAuth(ctx context.Context) error {
	s.authMu.Lock()
	switch s.authState {
	case domain.AuthStateHalted:
		s.authMu.Unlock()
		return domain.ErrDispatchHalted
	case domain.AuthStateRefreshing:
		// Another dispatch is refreshing; treat this call as failed so the
		// caller backs off and re-reads the state.
		s.authMu.Unlock()
		return domain.ErrDispatchHalted
	}
	s.authState = domain.AuthStateRefreshing
	s.authMu.Unlock()

	s.log.Warn("ledger rejected credentials, refreshing token")
	err := s.tokens.Refresh(ctx)

	s.authMu.Lock()
	defer s.authMu.Unlock()
	if err != nil {
		now := s.clock.Now()
		s.authState = domain.AuthStateHalted
		s.haltedAt = &now
		s.authErr = err.Error()
		s.log.Error("token refresh failed, halting all dispatch", zap.Error(err))
		return err
	}
	s.authState = domain.AuthStateNormal
	s.haltedAt = nil
	s.authErr = ""
	s.log.Info("token refreshed, dispatch resumed")
	return nil
}

func (s *Service) AuthStatus() domain.AuthStatus {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return domain.AuthStatus{
		State:     s.authState,
		HaltedAt:  s.haltedAt,
		LastError: s.authErr,
	}
}

func (s *Service) Reconnect(ctx context.Context) error {
	s.authMu.Lock()
	if s.authState == domain.AuthStateRefreshing {
		s.authMu.Unlock()
		return domain.ErrDispatchHalted
	}
	s.authState = domain.AuthStateRefreshing
	s.authMu.Unlock()

	err := s.tokens.Refresh(ctx)

	s.authMu.Lock()
	defer s.authMu.Unlock()
	if err != nil {
		now := s.clock.Now()
		s.authState = domain.AuthStateHalted
		s.haltedAt = &now
		s.authErr = err.Error()
		return err
	}
	s.authState = domain.AuthStateNormal
	s.haltedAt = nil
	s.authErr = ""
	s.log.Info("reconnected to ledger backend")
	return nil
}
