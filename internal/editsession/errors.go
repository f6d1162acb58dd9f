package editsession

import (
	"context"
	"errors"
	"log/slog"
)

var (
	ErrPermissionDenied = errors.New("you do not have permission to edit this product")
	ErrSummaryRequired  = errors.New("an edit summary is required to submit for review")
	ErrNotActive        = errors.New("edit mode is not active")
	ErrNoAuthor         = errors.New("no author identity for this session")
	ErrMissingProductID = errors.New("product record has no id")
	// ErrDraftPendingReview blocks a second draft while one awaits review.
	ErrDraftPendingReview = errors.New("a draft for this product is already awaiting review")
)

// PersistenceError wraps a draft store failure with the operation that
// triggered it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a user-facing message about a session outcome.
type Notification struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier forwards notifications to a logger, for callers without a
// user-facing channel.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(msg Notification) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if msg.Level == LevelError {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, msg.Title, "message", msg.Message)
}
