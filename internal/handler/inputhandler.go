package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"coinboard/internal/logic"
	"coinboard/internal/svc"
	"coinboard/internal/types"
)

func InputHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.InputRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, badRequest(err))
			return
		}

		l := logic.NewInputLogic(r.Context(), svcCtx)
		resp, err := l.Input(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
