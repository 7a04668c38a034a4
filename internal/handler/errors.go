package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/pkg/coinset"
	"coinboard/pkg/widget"
)

// CodeError is the JSON error body returned by every route.
type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return e.Msg
}

func badRequest(err error) error {
	return &CodeError{Code: http.StatusBadRequest, Msg: err.Error()}
}

// ErrorHandler maps core errors to HTTP statuses. Install it with
// httpx.SetErrorHandlerCtx.
func ErrorHandler(ctx context.Context, err error) (int, any) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code, ce
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, coinset.ErrNotSelected), errors.Is(err, coinset.ErrNotArchived):
		code = http.StatusNotFound
	case errors.Is(err, widget.ErrAlreadySelected), errors.Is(err, widget.ErrArchivedElsewhere):
		code = http.StatusConflict
	case errors.Is(err, widget.ErrUnresolved), errors.Is(err, widget.ErrRestoreRolledBack):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, coinset.ErrUnknownDirection):
		code = http.StatusBadRequest
	default:
		logx.WithContext(ctx).Errorf("handler: unmapped err=%v", err)
	}
	return code, &CodeError{Code: code, Msg: err.Error()}
}
