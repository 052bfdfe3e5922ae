package store

import (
	"context"
	"errors"

	"github.com/seantiz/apartment/internal/model"
)

// ErrInvalidTransition is returned when an object status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ObjectStats holds aggregate statistics over hosted objects.
type ObjectStats struct {
	Total           int            `json:"total"`
	CountByStatus   map[string]int `json:"count_by_status"`
	CountByKind     map[string]int `json:"count_by_kind"`
	Invocations     int            `json:"invocations"`
	FailedCalls     int            `json:"failed_calls"`
	AvgInvocationMS float64        `json:"avg_invocation_ms"`
}

// Store defines the persistence operations for hosted objects.
type Store interface {
	CreateObject(ctx context.Context, o *model.Object) error
	GetObject(ctx context.Context, id string) (*model.Object, error)
	ListObjects(ctx context.Context, limit, offset int) ([]*model.Object, int, error)
	UpdateObjectStatus(ctx context.Context, id, status, errMsg string) error
	RecordInvocation(ctx context.Context, inv *model.Invocation) error
	GetInvocations(ctx context.Context, objectID string) ([]model.Invocation, error)
	GetObjectStats(ctx context.Context) (*ObjectStats, error)
	Close() error
}
