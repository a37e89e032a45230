package db

import (
	"context"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/realtime"
)

// changePublisher announces writes on feeds that have no database trigger
// behind them. With a nil publisher it does nothing.
type changePublisher struct {
	publisher realtime.Publisher
	logger    *zap.SugaredLogger
}

func newChangePublisher(publisher realtime.Publisher, logger *zap.SugaredLogger) changePublisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return changePublisher{publisher: publisher, logger: logger}
}

func (p changePublisher) publish(ctx context.Context, kind realtime.Kind, op realtime.Op, projectID, recordID string, record any) {
	if p.publisher == nil {
		return
	}
	ev, err := realtime.NewEvent(kind, op, projectID, recordID, record)
	if err != nil {
		p.logger.Warnw("encode change event failed", "kind", string(kind), "id", recordID, "error", err)
		return
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.Warnw("publish change event failed", "kind", string(kind), "id", recordID, "error", err)
	}
}
