package api

import (
	"net/http"
	"testing"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	fail := func(code string) service.Result {
		return service.Result{Success: false, Error: "x", Code: code}
	}

	tests := []struct {
		name    string
		res     service.Result
		created bool
		want    int
	}{
		{"ok", service.OK(nil), false, http.StatusOK},
		{"created", service.OK(nil), true, http.StatusCreated},
		{"validation", fail(errors.ErrValidation), false, http.StatusBadRequest},
		{"config", fail(errors.ErrConfig), false, http.StatusBadRequest},
		{"not found", fail(errors.ErrNotFound), true, http.StatusNotFound},
		{"state", fail(errors.ErrState), false, http.StatusConflict},
		{"ssh", fail(errors.ErrSSH), false, http.StatusBadGateway},
		{"exec", fail(errors.ErrExec), false, http.StatusBadGateway},
		{"store", fail(errors.ErrStore), false, http.StatusInternalServerError},
		{"unclassified", fail(""), false, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.res, tt.created))
		})
	}
}
