package domain

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrInvalidID         = NewErr("INVALID_ID", "invalid paste id", http.StatusBadRequest)
	ErrPasteNotFound     = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrPasteTooLarge     = NewErr("PASTE_TOO_LARGE", "paste too large", http.StatusRequestEntityTooLarge)
	ErrBodyRead          = NewErr("BODY_READ_ERROR", "could not read request body", http.StatusBadRequest)
	ErrStore             = NewErr("STORE_UNAVAILABLE", "storage unavailable", http.StatusServiceUnavailable)
	ErrRateLimitExceeded = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrInternalServer    = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	ErrRouteNotFound     = NewErr("NOT_FOUND", "not found", http.StatusNotFound)
	ErrMethodNotAllowed  = NewErr("METHOD_NOT_ALLOWED", "method not allowed", http.StatusMethodNotAllowed)
	ErrUnauthorized      = NewErr("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// InvalidIDError reports the rejected input. It matches ErrInvalidID under errors.Is.
type InvalidIDError struct {
	Input string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidID.Msg, e.Input)
}
func (e *InvalidIDError) Is(target error) bool { return target == ErrInvalidID }

type ErrResp struct {
	Error ErrDetail `json:"error"`
}
type ErrDetail struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

func ToResp(err error) ErrResp {
	if e := asErr(err); e != nil {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: ErrInternalServer.Code, Msg: ErrInternalServer.Msg}}
}
func Status(err error) int {
	if e := asErr(err); e != nil {
		return e.Status
	}
	return http.StatusInternalServerError
}
func asErr(err error) *Err {
	var invalid *InvalidIDError
	if errors.As(err, &invalid) {
		return ErrInvalidID
	}
	var e *Err
	if errors.As(err, &e) {
		return e
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e
	}
	return nil
}
