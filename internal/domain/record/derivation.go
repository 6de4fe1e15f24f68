package record

import (
	"fmt"
	"strings"
)

// DefaultSeparator joins derived key components. It must not appear inside a component.
const DefaultSeparator = "<<>>"

// KeyDerivation is a pure function from an entity's Attributes to its primary key in one
// Keyspace: the values of the named attributes, in order, joined by Separator.
//
// Mirroring one entity into several Keyspaces, each with a different KeyDerivation, is how a
// uniqueness constraint over several attribute combinations is emulated on a store that only
// enforces uniqueness of a single primary key.
type KeyDerivation struct {
	Keyspace   Keyspace
	Attributes []string
	Separator  string
}

func (d *KeyDerivation) separator() string {
	if d.Separator == "" {
		return DefaultSeparator
	}
	return d.Separator
}

// Derive computes the Key for the given attributes.
//
// Errors if an attribute is missing or empty, or if a value contains the separator, since
// such a key could not be split back into its components unambiguously.
func (d *KeyDerivation) Derive(attributes Attributes) (Key, error) {
	if len(d.Attributes) == 0 {
		return "", InvalidInput{Reason: fmt.Sprintf("keyspace [%v] has no key attributes", d.Keyspace)}
	}
	sep := d.separator()
	components := make([]string, 0, len(d.Attributes))
	for _, name := range d.Attributes {
		value, ok := attributes[name]
		if !ok || value == "" {
			return "", InvalidInput{Reason: fmt.Sprintf("missing attribute [%s] for keyspace [%v]", name, d.Keyspace)}
		}
		if strings.Contains(value, sep) {
			return "", InvalidInput{Reason: fmt.Sprintf("attribute [%s] contains the key separator [%s]", name, sep)}
		}
		components = append(components, value)
	}
	return Key(strings.Join(components, sep)), nil
}

// Split recovers the named components of a derived Key
func (d *KeyDerivation) Split(key Key) (Attributes, error) {
	parts := strings.Split(string(key), d.separator())
	if len(parts) != len(d.Attributes) {
		return nil, InvalidInput{Reason: fmt.Sprintf("key [%v] does not have %d components", key, len(d.Attributes))}
	}
	attrs := make(Attributes, len(parts))
	for i, name := range d.Attributes {
		attrs[name] = parts[i]
	}
	return attrs, nil
}

// Schema holds the KeyDerivation of every known Keyspace
type Schema map[Keyspace]KeyDerivation

// Derivation returns the KeyDerivation for a Keyspace
func (s Schema) Derivation(keyspace Keyspace) (*KeyDerivation, error) {
	if d, ok := s[keyspace]; ok {
		return &d, nil
	}
	return nil, UnknownKeyspace{Keyspace: keyspace}
}
