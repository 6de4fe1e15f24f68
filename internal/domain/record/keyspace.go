package record

import (
	"fmt"
	"strings"
)

// Keyspace names end up as index and table names, so they follow the strictest of those rules
var invalidKeyspaceChars = "\\/*?\"<>| ,#:\x00"

var illegalKeyspacePrefixes = []string{
	"_",
	"-",
	"+",
}

var illegalKeyspaces = []string{
	".",
	"..",
}

// KeyspaceFromString returns a Keyspace if s is a valid name, otherwise an InvalidKeyspaceName
func KeyspaceFromString(s string) (Keyspace, error) {
	var errs []error

	if len(s) == 0 {
		errs = append(errs, fmt.Errorf("empty string"))
	}
	if strings.ContainsAny(s, invalidKeyspaceChars) {
		errs = append(errs, fmt.Errorf("contains invalid chars [%q]", invalidKeyspaceChars))
	}
	for _, illegalPrefix := range illegalKeyspacePrefixes {
		if strings.HasPrefix(s, illegalPrefix) {
			errs = append(errs, fmt.Errorf("starts with illegal char [%v]", illegalPrefix))
		}
	}
	for _, illegalStr := range illegalKeyspaces {
		if s == illegalStr {
			errs = append(errs, fmt.Errorf("equal to illegal string sequence [%v]", illegalStr))
		}
	}
	if s != strings.ToLower(s) {
		errs = append(errs, fmt.Errorf("not lower case [%v]", s))
	}
	if len(errs) == 0 {
		return Keyspace(s), nil
	} else {
		return "", InvalidKeyspaceName{Errors: errs}
	}
}

type InvalidKeyspaceName struct {
	Errors []error
}

func (i InvalidKeyspaceName) Error() string {
	return fmt.Sprintf("Illegal keyspace name: [%v]", i.Errors)
}
