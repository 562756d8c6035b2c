package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/absmach/fedasync/pkg/fl"
)

const (
	statusEndpoint  = "/status"
	clientsEndpoint = "/clients"
	roundsEndpoint  = "/rounds"
)

type Status struct {
	RunID        string      `json:"run_id"`
	Phase        string      `json:"phase"`
	NEpochs      int         `json:"n_epochs"`
	CurrentEpoch int         `json:"current_epoch"`
	Chosen       []string    `json:"chosen"`
	Buffered     int         `json:"buffered"`
	Quorum       int         `json:"quorum"`
	Registered   int         `json:"registered"`
	Converged    bool        `json:"converged"`
	Deadline     time.Time   `json:"deadline,omitempty"`
	LastMetrics  *fl.Metrics `json:"last_metrics,omitempty"`
}

type ClientPage struct {
	PageMetadata
	Total   uint64      `json:"total"`
	Clients []fl.Client `json:"clients"`
}

type RoundPage struct {
	PageMetadata
	Total  uint64     `json:"total"`
	Rounds []fl.Round `json:"rounds"`
}

func (sdk *fedSDK) Status() (Status, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.coordinatorURL+statusEndpoint, nil, http.StatusOK)
	if err != nil {
		return Status{}, err
	}

	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return Status{}, err
	}

	return st, nil
}

func (sdk *fedSDK) ListClients(offset, limit uint64) (ClientPage, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.pageURL(clientsEndpoint, offset, limit), nil, http.StatusOK)
	if err != nil {
		return ClientPage{}, err
	}

	var page ClientPage
	if err := json.Unmarshal(body, &page); err != nil {
		return ClientPage{}, err
	}

	return page, nil
}

func (sdk *fedSDK) ListRounds(offset, limit uint64) (RoundPage, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.pageURL(roundsEndpoint, offset, limit), nil, http.StatusOK)
	if err != nil {
		return RoundPage{}, err
	}

	var page RoundPage
	if err := json.Unmarshal(body, &page); err != nil {
		return RoundPage{}, err
	}

	return page, nil
}

func (sdk *fedSDK) pageURL(endpoint string, offset, limit uint64) string {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	url := sdk.coordinatorURL + endpoint
	if len(queries) > 0 {
		url += "?" + strings.Join(queries, "&")
	}

	return url
}
