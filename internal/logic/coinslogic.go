package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/internal/svc"
	"coinboard/internal/types"
	"coinboard/pkg/coinset"
)

type CoinsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewCoinsLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CoinsLogic {
	return &CoinsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *CoinsLogic) List() (*types.CoinsResponse, error) {
	snap := l.svcCtx.Set.Snapshot()
	var lastUpdated int64
	if !snap.LastUpdated.IsZero() {
		lastUpdated = snap.LastUpdated.UnixMilli()
	}
	return &types.CoinsResponse{
		Coins:        snap.Coins,
		Selected:     snap.Selected,
		RowSelection: snap.RowSelection,
		LastUpdated:  lastUpdated,
		TableError:   snap.TableError,
		Icons:        l.svcCtx.Icons.All(),
	}, nil
}

// Refresh fetches market data for every selected coin. A failed fetch is
// reported through the table error, not the response status.
func (l *CoinsLogic) Refresh() (*types.CoinsResponse, error) {
	if _, err := l.svcCtx.Fetcher.FetchAll(l.ctx); err != nil {
		l.Errorf("coins: refresh err=%v", err)
	}
	return l.List()
}

func (l *CoinsLogic) Add(req *types.AddCoinRequest) (*types.AddCoinResponse, error) {
	added, err := l.svcCtx.Widget.AddCoin(l.ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &types.AddCoinResponse{Added: added}, nil
}

func (l *CoinsLogic) Remove(req *types.CoinPathRequest) (*types.OkResponse, error) {
	if err := l.svcCtx.Set.Remove(l.ctx, req.ID); err != nil {
		return nil, err
	}
	return &types.OkResponse{Ok: true}, nil
}

func (l *CoinsLogic) Archive(req *types.CoinPathRequest) (*types.ArchiveEntryResponse, error) {
	entry, err := l.svcCtx.Set.ArchiveCoin(l.ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &types.ArchiveEntryResponse{Entry: entry}, nil
}

func (l *CoinsLogic) Move(req *types.MoveRequest) (*types.OkResponse, error) {
	dir, err := coinset.ParseDirection(req.Direction)
	if err != nil {
		return nil, err
	}
	if err := l.svcCtx.Set.Move(l.ctx, req.ID, dir); err != nil {
		return nil, err
	}
	return &types.OkResponse{Ok: true}, nil
}

func (l *CoinsLogic) SetSelection(req *types.SelectionRequest) (*types.SelectionResponse, error) {
	return &types.SelectionResponse{RowSelection: l.svcCtx.Set.SetRowSelection(req.IDs)}, nil
}

func (l *CoinsLogic) DeleteSelection() (*types.BulkDeleteResponse, error) {
	removed, err := l.svcCtx.Set.DeleteSelectedRows(l.ctx)
	if err != nil {
		return nil, err
	}
	return &types.BulkDeleteResponse{Removed: removed}, nil
}

func (l *CoinsLogic) ArchiveSelection() (*types.BulkArchiveResponse, error) {
	archived, err := l.svcCtx.Set.ArchiveSelectedRows(l.ctx)
	if err != nil {
		return nil, err
	}
	return &types.BulkArchiveResponse{Archived: archived}, nil
}
