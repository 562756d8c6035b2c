// Package api holds the HTTP encoding helpers shared by the read-only
// coordinator endpoints and the SDK that consumes them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 10

	ContentType = "application/json"

	MaxLimitSize = 100
)

var ErrLimitSize = errors.New("limit exceeds maximum page size")

type ErrorRes struct {
	Err string `json:"error"`
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	switch {
	case errors.Is(err, apiutil.ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, pkgerrors.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	_ = json.NewEncoder(w).Encode(ErrorRes{Err: err.Error()})
}
