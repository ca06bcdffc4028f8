package postgres

import "github.com/lib/pq"

func pqStringArray(values []string) any {
	return pq.Array(values)
}
