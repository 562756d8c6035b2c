package api

import "github.com/absmach/fedasync/pkg/api"

type statusReq struct{}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit == 0 || e.limit > api.MaxLimitSize {
		return api.ErrLimitSize
	}

	return nil
}
