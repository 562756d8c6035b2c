package api

import (
	"net/http"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*listClientsResponse)(nil)
	_ supermq.Response = (*listRoundsResponse)(nil)
)

type statusResponse struct {
	coordinator.Status
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type listClientsResponse struct {
	coordinator.ClientPage
}

func (l listClientsResponse) Code() int {
	return http.StatusOK
}

func (l listClientsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listClientsResponse) Empty() bool {
	return false
}

type listRoundsResponse struct {
	coordinator.RoundPage
}

func (l listRoundsResponse) Code() int {
	return http.StatusOK
}

func (l listRoundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRoundsResponse) Empty() bool {
	return false
}
