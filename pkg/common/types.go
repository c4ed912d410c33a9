package common

import "fmt"

// Record is one live key/value pair as seen by readers of the log.
type Record struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// String 方便调试打印
func (r *Record) String() string {
	return fmt.Sprintf("Record{Key: %q, ValLen: %d}", r.Key, len(r.Value))
}
