// record binds the Storage Port to Elasticsearch.
//
// The record timestamp doubles as the document's external version, so "not exists OR stored
// timestamp < ts" is exactly what ES enforces for an external-versioned index request.
// Search is near-real-time, which is this binding's eventual consistency.
//
// There is no atomic multi-document write in ES, so this binding is a record.Store only, and
// only supports the timestamp predicate.
package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/settle/internal/config"
	"github.com/lloydmeta/settle/internal/domain/metadata"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/infra/elasticsearch/common"
)

var DefaultIndexPrefix = "settle-"

const (
	defaultScrollSize = 500
	defaultScrollTtl  = time.Minute
)

type jsonObjMap map[string]interface{}

type EsStore struct {
	client      *elasticsearch.Client
	indexPrefix string
	scrollSize  uint
	scrollTtl   time.Duration
}

func NewStore(client *elasticsearch.Client, conf config.ElasticsearchClient) *EsStore {
	s := EsStore{
		client:      client,
		indexPrefix: conf.IndexPrefix,
		scrollSize:  conf.ScrollSize,
		scrollTtl:   conf.ScrollTtl,
	}
	if s.indexPrefix == "" {
		s.indexPrefix = DefaultIndexPrefix
	}
	if s.scrollSize == 0 {
		s.scrollSize = defaultScrollSize
	}
	if s.scrollTtl == 0 {
		s.scrollTtl = defaultScrollTtl
	}
	return &s
}

func (e *EsStore) IndexPrefix() string {
	return e.indexPrefix
}

// BuildIndexName returns the index backing a Keyspace
func (e *EsStore) BuildIndexName(keyspace record.Keyspace) common.IndexName {
	return common.IndexName(fmt.Sprintf("%s%s", e.indexPrefix, keyspace))
}

func (e *EsStore) Get(ctx context.Context, keyspace record.Keyspace, key record.Key, consistency record.Consistency) (*record.Record, error) {
	getReq := esapi.GetRequest{
		Index:      string(e.BuildIndexName(keyspace)),
		DocumentID: string(key),
		// a realtime get reads the translog, so it sees every acknowledged write
		Realtime: esapi.BoolPtr(consistency == record.Strong),
	}
	rawResp, err := getReq.Do(ctx, e.client)
	if err != nil {
		return nil, record.Unavailable{Underlying: common.ElasticsearchErr{Underlying: err}}
	}
	defer rawResp.Body.Close()

	switch rawResp.StatusCode {
	case 200:
		var response common.EsGetResponse
		if err := json.NewDecoder(rawResp.Body).Decode(&response); err != nil {
			return nil, record.Unavailable{Underlying: common.JsonSerdesErr{Underlying: []error{err}}}
		}
		if !response.Found {
			return nil, record.NotFound{Keyspace: keyspace, Key: key}
		}
		return decode(keyspace, response.ID, response.Source)
	case 404:
		return nil, record.NotFound{Keyspace: keyspace, Key: key}
	default:
		return nil, record.Unavailable{Underlying: common.UnexpectedEsStatusError(rawResp)}
	}
}

// QueryByAggregationKey scrolls through every document of a parent. A Strong query refreshes
// the index first, so the search sees every write acknowledged before the call.
func (e *EsStore) QueryByAggregationKey(ctx context.Context, keyspace record.Keyspace, aggregationKey record.AggregationKey, consistency record.Consistency) ([]record.Record, error) {
	indexName := e.BuildIndexName(keyspace)
	if consistency == record.Strong {
		if err := e.refresh(ctx, indexName); err != nil {
			return nil, err
		}
	}
	searchBody := buildAggregationSearchBody(aggregationKey, e.scrollSize)
	var found []record.Record
	err := e.scan(ctx, indexName, searchBody, func(hits []common.EsHit) error {
		for _, hit := range hits {
			r, err := decode(keyspace, hit.ID, hit.Source)
			if err != nil {
				return err
			}
			found = append(found, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	record.SortByKey(found)
	return found, nil
}

func (e *EsStore) ConditionalWrite(ctx context.Context, keyspace record.Keyspace, rec *record.Record, predicate record.Predicate) error {
	toPersist := toPersistedRecord(rec)
	toPersistBytes, err := json.Marshal(toPersist)
	if err != nil {
		return record.InvalidInput{Reason: common.JsonSerdesErr{Underlying: []error{err}}.Error()}
	}
	indexName := string(e.BuildIndexName(keyspace))

	olderThan, ok := predicate.OlderThan()
	if !ok {
		// op_type=create only supports internal versioning, which would break the external
		// version every other write relies on
		return record.UnsupportedCapability{Backend: "elasticsearch", Capability: predicate.String()}
	}
	if olderThan != rec.Timestamp {
		// the external version is the record's own timestamp
		return record.InvalidInput{Reason: fmt.Sprintf("[%v] can only be written conditionally on its own timestamp", rec.Key)}
	}
	indexReq := esapi.IndexRequest{
		Index:       indexName,
		DocumentID:  string(rec.Key),
		Body:        bytes.NewReader(toPersistBytes),
		Version:     esapi.IntPtr(int(rec.Timestamp)),
		VersionType: "external",
	}
	rawResp, err := indexReq.Do(ctx, e.client)
	if err != nil {
		return record.Unavailable{Underlying: common.ElasticsearchErr{Underlying: err}}
	}
	defer rawResp.Body.Close()

	statusCode := rawResp.StatusCode
	switch {
	case 200 <= statusCode && statusCode <= 299:
		return nil
	case statusCode == 409:
		return record.PredicateFailed{Keyspace: keyspace, Key: rec.Key}
	default:
		return record.Unavailable{Underlying: common.UnexpectedEsStatusError(rawResp)}
	}
}

func (e *EsStore) refresh(ctx context.Context, indexName common.IndexName) error {
	refreshReq := esapi.IndicesRefreshRequest{
		Index:             []string{string(indexName)},
		IgnoreUnavailable: esapi.BoolPtr(true),
	}
	rawResp, err := refreshReq.Do(ctx, e.client)
	if err != nil {
		return record.Unavailable{Underlying: common.ElasticsearchErr{Underlying: err}}
	}
	defer rawResp.Body.Close()
	if rawResp.IsError() {
		return record.Unavailable{Underlying: common.UnexpectedEsStatusError(rawResp)}
	}
	return nil
}

// Scrolls through all hits of a search body, taking care to close all response bodies and close scrolls
func (e *EsStore) scan(ctx context.Context, indexName common.IndexName, searchBody jsonObjMap, doWithBatch func(hits []common.EsHit) error) (err error) {
	log.Debug().Interface("searchBody", searchBody).Str("index", string(indexName)).Msg("Scanning records")
	page, err := e.initSearch(ctx, indexName, searchBody)
	if err != nil || page == nil {
		return err
	}
	var scrollIds []string
	scrollIds = append(scrollIds, page.ScrollId)
	defer func() {
		if scrollErr := e.clearScroll(ctx, scrollIds); scrollErr != nil && err == nil {
			err = scrollErr
		}
	}()

	for len(page.Hits.Hits) > 0 {
		if err := doWithBatch(page.Hits.Hits); err != nil {
			return err
		}
		page, err = e.scroll(ctx, page.ScrollId)
		if err != nil {
			return err
		}
		if page == nil {
			return nil
		}
		scrollIds = append(scrollIds, page.ScrollId)
	}
	return nil
}

func (e *EsStore) initSearch(ctx context.Context, indexName common.IndexName, searchBody jsonObjMap) (*common.EsScrollResponse, error) {
	searchBodyBytes, err := json.Marshal(searchBody)
	if err != nil {
		return nil, record.InvalidInput{Reason: common.JsonSerdesErr{Underlying: []error{err}}.Error()}
	}
	searchReq := esapi.SearchRequest{
		Scroll:            e.scrollTtl,
		Index:             []string{string(indexName)},
		AllowNoIndices:    esapi.BoolPtr(true),
		IgnoreUnavailable: esapi.BoolPtr(true),
		Body:              bytes.NewReader(searchBodyBytes),
	}
	rawResp, err := searchReq.Do(ctx, e.client)
	if err != nil {
		return nil, record.Unavailable{Underlying: common.ElasticsearchErr{Underlying: err}}
	}
	defer rawResp.Body.Close()
	return processScrollResp(rawResp)
}

func (e *EsStore) scroll(ctx context.Context, scrollId string) (*common.EsScrollResponse, error) {
	scrollReq := esapi.ScrollRequest{
		Scroll:   e.scrollTtl,
		ScrollID: scrollId,
	}
	rawResp, err := scrollReq.Do(ctx, e.client)
	if err != nil {
		return nil, record.Unavailable{Underlying: common.ElasticsearchErr{Underlying: err}}
	}
	defer rawResp.Body.Close()
	return processScrollResp(rawResp)
}

// processScrollResp returns nil without an error when the index does not exist
func processScrollResp(rawResp *esapi.Response) (*common.EsScrollResponse, error) {
	switch rawResp.StatusCode {
	case 200:
		var scrollResp common.EsScrollResponse
		if err := json.NewDecoder(rawResp.Body).Decode(&scrollResp); err != nil {
			return nil, record.Unavailable{Underlying: common.JsonSerdesErr{Underlying: []error{err}}}
		}
		return &scrollResp, nil
	case 404:
		return nil, nil
	default:
		return nil, record.Unavailable{Underlying: common.UnexpectedEsStatusError(rawResp)}
	}
}

func (e *EsStore) clearScroll(ctx context.Context, scrollIds []string) error {
	if len(scrollIds) == 0 {
		return nil
	}
	clearScrollReq := esapi.ClearScrollRequest{ScrollID: scrollIds}
	rawResp, err := clearScrollReq.Do(ctx, e.client)
	if err != nil {
		return record.Unavailable{Underlying: common.ElasticsearchErr{Underlying: err}}
	}
	defer rawResp.Body.Close()
	switch rawResp.StatusCode {
	case 200, 404:
		return nil
	default:
		return record.Unavailable{Underlying: common.UnexpectedEsStatusError(rawResp)}
	}
}

func buildAggregationSearchBody(aggregationKey record.AggregationKey, scrollSize uint) jsonObjMap {
	return jsonObjMap{
		"size": scrollSize,
		"sort": []string{"_doc"},
		"query": jsonObjMap{
			"term": jsonObjMap{
				"aggregation_key.keyword": string(aggregationKey),
			},
		},
	}
}

// Private persistence doc structure based entirely on basic types for ease of guaranteeing serdes.
type persistedRecord struct {
	AggregationKey string            `json:"aggregation_key"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	// Stored as a string so it survives float64 round trips in other JSON tooling
	Timestamp string     `json:"timestamp"`
	IsDeleted bool       `json:"is_deleted"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func toPersistedRecord(rec *record.Record) persistedRecord {
	p := persistedRecord{
		AggregationKey: string(rec.AggregationKey),
		Attributes:     rec.Attributes,
		Timestamp:      rec.Timestamp.String(),
		IsDeleted:      bool(rec.IsDeleted),
	}
	if rec.ExpiresAt != nil {
		at := time.Time(*rec.ExpiresAt)
		p.ExpiresAt = &at
	}
	return p
}

func decode(keyspace record.Keyspace, id string, source json.RawMessage) (*record.Record, error) {
	var p persistedRecord
	if err := json.Unmarshal(source, &p); err != nil {
		return nil, record.CorruptRecord{Keyspace: keyspace, Key: record.Key(id), Reason: common.JsonSerdesErr{Underlying: []error{err}}.Error()}
	}
	ts, err := metadata.ParseTimestamp(p.Timestamp)
	if err != nil {
		return nil, record.CorruptRecord{Keyspace: keyspace, Key: record.Key(id), Reason: err.Error()}
	}
	r := record.Record{
		Key:            record.Key(id),
		AggregationKey: record.AggregationKey(p.AggregationKey),
		Attributes:     record.Attributes(p.Attributes),
		Timestamp:      ts,
		IsDeleted:      metadata.IsDeleted(p.IsDeleted),
	}
	if p.ExpiresAt != nil {
		e := metadata.ExpiresAt(p.ExpiresAt.UTC())
		r.ExpiresAt = &e
	}
	return &r, nil
}
