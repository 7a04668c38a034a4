package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/internal/svc"
	"coinboard/internal/types"
)

type QueueLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewQueueLogic(ctx context.Context, svcCtx *svc.ServiceContext) *QueueLogic {
	return &QueueLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *QueueLogic) Status() (*types.QueueResponse, error) {
	resp := queueResponse(l.svcCtx)
	return &resp, nil
}

func (l *QueueLogic) Stop() (*types.StopResponse, error) {
	stopped := l.svcCtx.Queue.Stop()
	if stopped {
		l.Info("queue: stopped by request")
	}
	return &types.StopResponse{Stopped: stopped}, nil
}

func queueResponse(svcCtx *svc.ServiceContext) types.QueueResponse {
	status := svcCtx.Queue.Status()
	return types.QueueResponse{Status: status, Display: status.Display()}
}
