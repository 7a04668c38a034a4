package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/internal/svc"
	"coinboard/internal/types"
)

type ArchiveLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewArchiveLogic(ctx context.Context, svcCtx *svc.ServiceContext) *ArchiveLogic {
	return &ArchiveLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *ArchiveLogic) List() (*types.ArchiveResponse, error) {
	return &types.ArchiveResponse{Archive: l.svcCtx.Set.Archived()}, nil
}

func (l *ArchiveLogic) Restore(req *types.CoinPathRequest) (*types.RestoreResponse, error) {
	id, err := l.svcCtx.Widget.Restore(l.ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &types.RestoreResponse{ID: id}, nil
}

func (l *ArchiveLogic) Delete(req *types.CoinPathRequest) (*types.OkResponse, error) {
	if err := l.svcCtx.Set.Purge(l.ctx, req.ID); err != nil {
		return nil, err
	}
	return &types.OkResponse{Ok: true}, nil
}
