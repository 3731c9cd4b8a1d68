package workspace

import (
	"time"

	"pdfpro/api/internal/util"
)

const DefaultTaskLogLimit = 200

type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskMemory records one executed command and its outcome.
type TaskMemory struct {
	ID            string     `json:"id"`
	Command       string     `json:"command"`
	Status        TaskStatus `json:"status"`
	Timestamp     time.Time  `json:"timestamp"`
	ResultSummary string     `json:"resultSummary"`
}

// TaskLog keeps entries newest first and drops the oldest past its limit.
type TaskLog struct {
	entries []TaskMemory
	limit   int
}

func NewTaskLog(entries []TaskMemory, limit int) *TaskLog {
	if limit <= 0 {
		limit = DefaultTaskLogLimit
	}
	l := &TaskLog{limit: limit}
	l.entries = append(l.entries, entries...)
	if len(l.entries) > limit {
		l.entries = l.entries[:limit]
	}
	return l
}

func (l *TaskLog) Add(command string, status TaskStatus, summary string, at time.Time) TaskMemory {
	entry := TaskMemory{
		ID:            util.NewID("task"),
		Command:       command,
		Status:        status,
		Timestamp:     at.UTC(),
		ResultSummary: summary,
	}
	l.entries = append([]TaskMemory{entry}, l.entries...)
	if len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
	return entry
}

func (l *TaskLog) Clear() { l.entries = nil }

func (l *TaskLog) Entries() []TaskMemory {
	return append([]TaskMemory{}, l.entries...)
}

func (l *TaskLog) Len() int { return len(l.entries) }
