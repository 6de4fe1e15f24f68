package common

import (
	"context"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.elastic.co/apm/module/apmelasticsearch"

	"github.com/lloydmeta/settle/internal/config"
)

// NewClient returns a configured elasticsearch.Client based on the given conf, with requests
// traced through APM
func NewClient(conf config.ElasticsearchClient) (*elasticsearch.Client, error) {
	return NewClientWithTransport(conf, apmelasticsearch.WrapRoundTripper(http.DefaultTransport))
}

// NewClientWithTransport is NewClient over a caller-supplied transport
func NewClientWithTransport(conf config.ElasticsearchClient, transport http.RoundTripper) (*elasticsearch.Client, error) {
	esClientConfig := elasticsearch.Config{Addresses: conf.Addresses, Transport: transport}
	if conf.User != nil {
		esClientConfig.Username = conf.User.Name
		esClientConfig.Password = conf.User.Password
	}
	return elasticsearch.NewClient(esClientConfig)
}

// CheckHealth errors unless the cluster answers a health request
func CheckHealth(ctx context.Context, client *elasticsearch.Client) error {
	healthRequest := esapi.ClusterHealthRequest{}
	rawResp, err := healthRequest.Do(ctx, client)
	if err != nil {
		return ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	if rawResp.IsError() {
		return ElasticsearchErr{Underlying: fmt.Errorf("cluster health request failed with status [%d]", rawResp.StatusCode)}
	}
	return nil
}
