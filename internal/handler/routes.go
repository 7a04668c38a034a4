package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"coinboard/internal/svc"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{Method: http.MethodPost, Path: "/input", Handler: InputHandler(serverCtx)},
			{Method: http.MethodGet, Path: "/queue", Handler: QueueStatusHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/queue/stop", Handler: QueueStopHandler(serverCtx)},
		},
		rest.WithPrefix("/api"),
	)

	server.AddRoutes(
		[]rest.Route{
			{Method: http.MethodGet, Path: "/coins", Handler: CoinsHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/coins/refresh", Handler: RefreshCoinsHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/coins/add", Handler: AddCoinHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/coins/:id/remove", Handler: RemoveCoinHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/coins/:id/archive", Handler: ArchiveCoinHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/coins/:id/move", Handler: MoveCoinHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/coins/selection", Handler: SetSelectionHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/coins/selection/delete", Handler: DeleteSelectionHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/coins/selection/archive", Handler: ArchiveSelectionHandler(serverCtx)},
		},
		rest.WithPrefix("/api"),
	)

	server.AddRoutes(
		[]rest.Route{
			{Method: http.MethodGet, Path: "/archive", Handler: ArchiveListHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/archive/:id/restore", Handler: RestoreHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/archive/:id/delete", Handler: PurgeHandler(serverCtx)},
		},
		rest.WithPrefix("/api"),
	)

	server.AddRoutes(
		[]rest.Route{
			{Method: http.MethodPost, Path: "/unlock", Handler: UnlockHandler(serverCtx)},
			{Method: http.MethodGet, Path: "/apikey", Handler: APIKeyStatusHandler(serverCtx)},
			{Method: http.MethodPost, Path: "/apikey", Handler: SaveAPIKeyHandler(serverCtx)},
		},
		rest.WithPrefix("/api"),
	)

	// Websocket connections outlive any request timeout.
	server.AddRoutes(
		[]rest.Route{
			{Method: http.MethodGet, Path: "/ws", Handler: serverCtx.Stream.ServeHTTP},
		},
		rest.WithTimeout(0),
	)
}
