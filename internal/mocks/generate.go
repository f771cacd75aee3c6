// Package mocks provides mock implementations for testing the gatehouse orchestrator.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the core interfaces. The mocks are generated using go:generate directives
// and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, MarkExecuting, BeginGate, MarkActionRunning, Complete, Fail,
// Cancel, ListNonTerminal, ListExpiredGates, Stats
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/voiceloop/gatehouse/internal/core JobRepository

// Generate mock for CallbackNotifier interface from internal/core package.
// This creates MockCallbackNotifier with methods for all CallbackNotifier interface methods:
// Notify
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=callback_notifier_mock.go github.com/voiceloop/gatehouse/internal/core CallbackNotifier
