package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/internal/svc"
	"coinboard/internal/types"
)

type InputLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewInputLogic(ctx context.Context, svcCtx *svc.ServiceContext) *InputLogic {
	return &InputLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Input routes search box text. The ingest run outlives the request.
func (l *InputLogic) Input(req *types.InputRequest) (*types.InputResponse, error) {
	res, err := l.svcCtx.Widget.HandleInput(context.WithoutCancel(l.ctx), req.Text)
	if err != nil {
		return nil, err
	}
	if res.Started {
		l.Infof("input: started ingest tickers=%v", res.Tickers)
	}
	return &types.InputResponse{
		Mode:        string(res.Mode),
		Tickers:     res.Tickers,
		Accepted:    res.Accepted,
		Started:     res.Started,
		Suggestions: res.Suggestions,
		Queue:       queueResponse(l.svcCtx),
	}, nil
}
