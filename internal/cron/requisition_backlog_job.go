package cron

import (
	"context"
	"fmt"

	"github.com/lastline-erp/lastline-backend/pkg/enums"
	"github.com/lastline-erp/lastline-backend/pkg/logger"
)

type statusCounter interface {
	CountByStatus(ctx context.Context) (map[enums.RequisitionStatus]int64, error)
}

type backlogGauge interface {
	SetRequisitionBacklog(status string, count int64)
}

type requisitionBacklogJob struct {
	logg    *logger.Logger
	counter statusCounter
	gauge   backlogGauge
}

// NewRequisitionBacklogJob samples requisition counts per status into a
// gauge. Every status is written so drained queues report zero.
func NewRequisitionBacklogJob(logg *logger.Logger, counter statusCounter, gauge backlogGauge) (Job, error) {
	if logg == nil || counter == nil || gauge == nil {
		return nil, fmt.Errorf("logger, counter and gauge required")
	}
	return &requisitionBacklogJob{logg: logg, counter: counter, gauge: gauge}, nil
}

func (j *requisitionBacklogJob) Name() string { return "requisition-backlog" }

func (j *requisitionBacklogJob) Run(ctx context.Context) error {
	counts, err := j.counter.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count requisitions: %w", err)
	}
	fields := make(map[string]any, len(enums.RequisitionStatuses))
	for _, status := range enums.RequisitionStatuses {
		j.gauge.SetRequisitionBacklog(string(status), counts[status])
		fields[string(status)] = counts[status]
	}
	j.logg.Debug(j.logg.WithFields(ctx, fields), "requisition backlog sampled")
	return nil
}
