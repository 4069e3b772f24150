package store

import (
	"fmt"
	"strconv"
)

const countersTable Table = "counters"

// NextSeq atomically increments and returns the named counter, starting at
// 1. Ticket numbers draw from here so rapid concurrent creation cannot
// collide the way a timestamp-derived number can.
func (s *Store) NextSeq(name string) (uint64, error) {
	var next uint64
	err := s.Update(countersTable, name, func(old []byte, found bool) ([]byte, error) {
		if found {
			cur, err := strconv.ParseUint(string(old), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("counter %s corrupt: %w", name, err)
			}
			next = cur + 1
		} else {
			next = 1
		}
		return []byte(strconv.FormatUint(next, 10)), nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
