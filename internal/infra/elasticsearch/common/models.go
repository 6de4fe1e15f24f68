// common holds the client, errors and response envelopes shared by the ES bindings
package common

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// IndexName is the concrete index backing a keyspace
type IndexName string

type ElasticsearchErr struct {
	Underlying error
}

func (e ElasticsearchErr) Error() string {
	return fmt.Sprintf("Error from Elasticsearch: %v", e.Underlying)
}

func (e ElasticsearchErr) Unwrap() error {
	return e.Underlying
}

type JsonSerdesErr struct {
	Underlying []error
}

func (e JsonSerdesErr) Error() string {
	return fmt.Sprintf("Error working with JSON: %v", e.Underlying)
}

func (e JsonSerdesErr) Unwrap() error {
	if len(e.Underlying) == 1 {
		return e.Underlying[0]
	} else {
		return fmt.Errorf("Multiple JSON serdes errors: [%v]", e.Underlying)
	}
}

func UnexpectedEsStatusError(rawResp *esapi.Response) ElasticsearchErr {
	var buf bytes.Buffer
	var body string
	if _, err := buf.ReadFrom(rawResp.Body); err == nil {
		body = buf.String()
	}
	return ElasticsearchErr{Underlying: fmt.Errorf("Unexpected status from ES: [%d], body: [%s]", rawResp.StatusCode, body)}
}

// EsGetResponse is the envelope of a single document GET
type EsGetResponse struct {
	Index   string          `json:"_index"`
	ID      string          `json:"_id"`
	Version int64           `json:"_version"`
	Found   bool            `json:"found"`
	Source  json.RawMessage `json:"_source"`
}

// EsScrollResponse is the envelope of a search or scroll page
type EsScrollResponse struct {
	ScrollId string `json:"_scroll_id"`
	Hits     struct {
		Hits []EsHit `json:"hits"`
	} `json:"hits"`
}

type EsHit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}
