package types

import (
	"coinboard/pkg/coinset"
	"coinboard/pkg/ingest"
	"coinboard/pkg/market"
)

type InputRequest struct {
	Text string `json:"text"`
}

type InputResponse struct {
	Mode        string              `json:"mode"`
	Tickers     []string            `json:"tickers"`
	Accepted    []string            `json:"accepted"`
	Started     bool                `json:"started"`
	Suggestions []market.SearchCoin `json:"suggestions"`
	Queue       QueueResponse       `json:"queue"`
}

type QueueResponse struct {
	ingest.Status
	Display string `json:"display"`
}

type StopResponse struct {
	Stopped bool `json:"stopped"`
}

type CoinsResponse struct {
	Coins        []market.Coin     `json:"coins"`
	Selected     []string          `json:"selected"`
	RowSelection []string          `json:"rowSelection"`
	LastUpdated  int64             `json:"lastUpdated"`
	TableError   string            `json:"tableError,omitempty"`
	Icons        map[string]string `json:"icons"`
}

type AddCoinRequest struct {
	ID string `json:"id"`
}

type AddCoinResponse struct {
	Added bool `json:"added"`
}

type CoinPathRequest struct {
	ID string `path:"id"`
}

type MoveRequest struct {
	ID        string `path:"id"`
	Direction string `json:"direction"`
}

type SelectionRequest struct {
	IDs []string `json:"ids"`
}

type SelectionResponse struct {
	RowSelection []string `json:"rowSelection"`
}

type BulkDeleteResponse struct {
	Removed []string `json:"removed"`
}

type BulkArchiveResponse struct {
	Archived []coinset.ArchiveEntry `json:"archived"`
}

type ArchiveEntryResponse struct {
	Entry coinset.ArchiveEntry `json:"entry"`
}

type ArchiveResponse struct {
	Archive []coinset.ArchiveEntry `json:"archive"`
}

type RestoreResponse struct {
	ID string `json:"id"`
}

type APIKeyRequest struct {
	Key string `json:"key,optional"`
}

type APIKeyResponse struct {
	Stored bool `json:"stored"`
}

type UnlockResponse struct {
	Unlocked bool `json:"unlocked"`
}

type OkResponse struct {
	Ok bool `json:"ok"`
}
