package api

import (
	"context"
	"errors"

	"github.com/absmach/fedasync/coordinator"
	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func statusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if _, ok := request.(statusReq); !ok {
			return statusResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}

		st, err := svc.Status(ctx)
		if err != nil {
			return statusResponse{}, err
		}

		return statusResponse{Status: st}, nil
	}
}

func listClientsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listClientsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listClientsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListClients(ctx, req.offset, req.limit)
		if err != nil {
			return listClientsResponse{}, err
		}

		return listClientsResponse{ClientPage: page}, nil
	}
}

func listRoundsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listRoundsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRoundsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListRounds(ctx, req.offset, req.limit)
		if err != nil {
			return listRoundsResponse{}, err
		}

		return listRoundsResponse{RoundPage: page}, nil
	}
}
