package api

import (
	"net/http"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/service"
)

// StatusFor maps an envelope to the HTTP status it is sent with. created
// picks 201 for successful creates.
func StatusFor(res service.Result, created bool) int {
	if res.Success {
		if created {
			return http.StatusCreated
		}
		return http.StatusOK
	}

	switch res.Code {
	case errors.ErrValidation, errors.ErrConfig:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrState:
		return http.StatusConflict
	case errors.ErrSSH, errors.ErrExec:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
