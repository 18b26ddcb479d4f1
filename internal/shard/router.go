// Package shard maps user identifiers to data partitions.
package shard

// DefaultPartitions is the number of partitions the deployment was built with.
const DefaultPartitions = 3

// Route returns the partition index for userID: the sum of its character codes modulo n.
// Every create, lookup, update and delete must go through Route so that a user's records are
// always read from the partition they were written to.
func Route(userID string, n int) int {
	if n <= 0 {
		n = 1
	}
	sum := 0
	for _, r := range userID {
		sum += int(r)
	}
	return sum % n
}

// Router binds Route to a fixed partition count.
type Router struct {
	n int
}

// NewRouter creates a router over n partitions.
func NewRouter(n int) Router {
	if n <= 0 {
		n = DefaultPartitions
	}
	return Router{n: n}
}

// Route returns the partition index for userID.
func (r Router) Route(userID string) int {
	return Route(userID, r.n)
}

// Partitions returns the partition count.
func (r Router) Partitions() int {
	return r.n
}
