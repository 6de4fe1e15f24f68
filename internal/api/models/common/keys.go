package common

import "github.com/lloydmeta/settle/internal/domain/record"

// KeyRef names one record in one keyspace
type KeyRef struct {
	Keyspace string `json:"keyspace" binding:"required,keyspace" example:"order_by_poid_gk"`
	Key      string `json:"key" binding:"required" example:"p1<<>>g1"`
}

func (k *KeyRef) ToDomain() record.KeyRef {
	return record.KeyRef{Keyspace: record.Keyspace(k.Keyspace), Key: record.Key(k.Key)}
}

func FromDomainKeyRefs(refs []record.KeyRef) []KeyRef {
	apiRefs := make([]KeyRef, 0, len(refs))
	for _, ref := range refs {
		apiRefs = append(apiRefs, KeyRef{Keyspace: string(ref.Keyspace), Key: string(ref.Key)})
	}
	return apiRefs
}
