package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const CTJSON string = "application/json"

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// Status reports the coordinator's current run state.
	//
	// example:
	//  st, _ := sdk.Status()
	//  fmt.Println(st.Phase, st.CurrentEpoch)
	Status() (Status, error)

	// ListClients lists registered clients.
	//
	// example:
	//  page, _ := sdk.ListClients(0, 10)
	//  fmt.Println(page.Total)
	ListClients(offset uint64, limit uint64) (ClientPage, error)

	// ListRounds lists completed rounds in epoch order.
	//
	// example:
	//  page, _ := sdk.ListRounds(0, 10)
	//  fmt.Println(page.Rounds)
	ListRounds(offset uint64, limit uint64) (RoundPage, error)
}

type fedSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
	Timeout         time.Duration
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Err string `json:"error"`
}

func (sdk *fedSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e errorRes
		if err := json.Unmarshal(body, &e); err == nil && e.Err != "" {
			return []byte{}, fmt.Errorf("unexpected response code %d: %s", resp.StatusCode, e.Err)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
