package sqlite

import (
	"time"

	"github.com/zjrosen/strand/internal/orchestrator"
)

// requestModel is the database row for the requests table. Time values are
// stored as Unix milliseconds.
type requestModel struct {
	ID         int64
	ProcessID  string
	Input      string
	Response   *string // nullable
	Error      *string // nullable
	Completed  bool
	StartedAt  int64
	FinishedAt int64
	DurationMs int64
}

func toRequestModel(rec orchestrator.RequestRecord) requestModel {
	m := requestModel{
		ProcessID:  rec.ProcessID,
		Input:      rec.Input,
		Completed:  rec.Completed,
		StartedAt:  rec.StartedAt.UnixMilli(),
		FinishedAt: rec.FinishedAt.UnixMilli(),
		DurationMs: rec.Duration.Milliseconds(),
	}
	if rec.Response != "" {
		m.Response = &rec.Response
	}
	if rec.Err != "" {
		m.Error = &rec.Err
	}
	return m
}

func (m requestModel) toRecord() orchestrator.RequestRecord {
	rec := orchestrator.RequestRecord{
		ProcessID:  m.ProcessID,
		Input:      m.Input,
		Completed:  m.Completed,
		StartedAt:  time.UnixMilli(m.StartedAt),
		FinishedAt: time.UnixMilli(m.FinishedAt),
		Duration:   time.Duration(m.DurationMs) * time.Millisecond,
	}
	if m.Response != nil {
		rec.Response = *m.Response
	}
	if m.Error != nil {
		rec.Err = *m.Error
	}
	return rec
}
