// Package api exposes the coordinator's run state over HTTP. The protocol
// itself travels over the message channel; these endpoints are read-only.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/api"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const svcName = "coordinator"

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Get("/status", otelhttp.NewHandler(kithttp.NewServer(
		statusEndpoint(svc),
		decodeStatusReq,
		api.EncodeResponse,
		opts...,
	), "status").ServeHTTP)
	mux.Get("/clients", otelhttp.NewHandler(kithttp.NewServer(
		listClientsEndpoint(svc),
		decodeListEntityReq,
		api.EncodeResponse,
		opts...,
	), "list-clients").ServeHTTP)
	mux.Get("/rounds", otelhttp.NewHandler(kithttp.NewServer(
		listRoundsEndpoint(svc),
		decodeListEntityReq,
		api.EncodeResponse,
		opts...,
	), "list-rounds").ServeHTTP)

	mux.Get("/health", supermq.Health(svcName, instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeStatusReq(_ context.Context, _ *http.Request) (any, error) {
	return statusReq{}, nil
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}
