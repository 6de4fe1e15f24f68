package config

import "time"

// TopLevel namespaces the config file under a single "settle" key
type TopLevel struct {
	Settle Settle `json:"settle" mapstructure:"settle"`
}

type Settle struct {
	Server App `json:"server" mapstructure:"server"`
}

type App struct {
	BindAddress     string        `json:"bind_address" mapstructure:"bind_address"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	ApmClient       *ApmClient    `json:"apm,omitempty" mapstructure:"apm"`
	Logging         *Logging      `json:"logging,omitempty" mapstructure:"logging"`
	Store           Store         `json:"store" mapstructure:"store"`
	Keyspaces       []Keyspace    `json:"keyspaces" mapstructure:"keyspaces"`
	Reconcile       Reconcile     `json:"reconcile" mapstructure:"reconcile"`
	Metrics         Metrics       `json:"metrics" mapstructure:"metrics"`
}

type Logging struct {
	Json  *bool   `json:"json,omitempty" mapstructure:"json"`
	File  *string `json:"file,omitempty" mapstructure:"file"`
	Level *string `json:"level,omitempty" mapstructure:"level"`
}

type ApmClient struct {
	Address     *string `json:"address,omitempty" mapstructure:"address"`
	SecretToken *string `json:"secret_token,omitempty" mapstructure:"secret_token"`
}

type Backend string

const (
	MemoryBackend        Backend = "memory"
	DynamoDBBackend      Backend = "dynamodb"
	ElasticsearchBackend Backend = "elasticsearch"
	PebbleBackend        Backend = "pebble"
)

type Store struct {
	Backend       Backend              `json:"backend" mapstructure:"backend"`
	DynamoDB      *DynamoDB            `json:"dynamodb,omitempty" mapstructure:"dynamodb"`
	Elasticsearch *ElasticsearchClient `json:"elasticsearch,omitempty" mapstructure:"elasticsearch"`
	Pebble        *Pebble              `json:"pebble,omitempty" mapstructure:"pebble"`
	Memory        *Memory              `json:"memory,omitempty" mapstructure:"memory"`
}

type DynamoDB struct {
	Region string `json:"region" mapstructure:"region"`
	// Overrides the service endpoint, e.g. for DynamoDB Local
	Endpoint *string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	// Name of the global secondary index hashed on the aggregation key
	AggregationIndex string `json:"aggregation_index" mapstructure:"aggregation_index"`
	// Keyspace name to table name; keyspaces not listed use their own name
	Tables map[string]string `json:"tables,omitempty" mapstructure:"tables"`
	// When unset, the default AWS credential chain is used
	StaticCredentials *StaticCredentials `json:"static_credentials,omitempty" mapstructure:"static_credentials"`
}

type StaticCredentials struct {
	AccessKeyID     string `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" mapstructure:"secret_access_key"`
}

type ElasticsearchClient struct {
	Addresses   []string       `json:"addresses" mapstructure:"addresses"`
	User        *BasicAuthUser `json:"user,omitempty" mapstructure:"user"`
	IndexPrefix string         `json:"index_prefix" mapstructure:"index_prefix"`
	ScrollSize  uint           `json:"scroll_size" mapstructure:"scroll_size"`
	ScrollTtl   time.Duration  `json:"scroll_ttl" mapstructure:"scroll_ttl"`
}

type BasicAuthUser struct {
	Name     string `json:"name" mapstructure:"name"`
	Password string `json:"password" mapstructure:"password"`
}

type Pebble struct {
	Dir      string `json:"dir" mapstructure:"dir"`
	InMemory bool   `json:"in_memory" mapstructure:"in_memory"`
}

type Memory struct {
	IndexLag uint `json:"index_lag" mapstructure:"index_lag"`
}

// Keyspace describes how primary keys are derived from entity attributes
type Keyspace struct {
	Name          string   `json:"name" mapstructure:"name"`
	KeyAttributes []string `json:"key_attributes" mapstructure:"key_attributes"`
	Separator     *string  `json:"separator,omitempty" mapstructure:"separator"`
}

type Reconcile struct {
	MaxAttempts uint   `json:"max_attempts" mapstructure:"max_attempts"`
	OnVanished  string `json:"on_vanished" mapstructure:"on_vanished"`
	Parallelism uint   `json:"parallelism" mapstructure:"parallelism"`
}

type Metrics struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}
