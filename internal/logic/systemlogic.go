package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/internal/svc"
	"coinboard/internal/types"
)

type SystemLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewSystemLogic(ctx context.Context, svcCtx *svc.ServiceContext) *SystemLogic {
	return &SystemLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *SystemLogic) Unlock() (*types.UnlockResponse, error) {
	if l.svcCtx.Unlock() {
		l.Info("system: unlocked")
	}
	return &types.UnlockResponse{Unlocked: true}, nil
}

func (l *SystemLogic) APIKeyStatus() (*types.APIKeyResponse, error) {
	return &types.APIKeyResponse{Stored: l.svcCtx.Widget.HasAPIKey(l.ctx)}, nil
}

// SaveAPIKey stores the key; an empty key removes it.
func (l *SystemLogic) SaveAPIKey(req *types.APIKeyRequest) (*types.APIKeyResponse, error) {
	if err := l.svcCtx.Widget.SaveAPIKey(l.ctx, req.Key); err != nil {
		return nil, err
	}
	return l.APIKeyStatus()
}
