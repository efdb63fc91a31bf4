package models

import "time"

// IdempotencyRecord pins a caller-supplied transfer key to the reference of
// the transfer it produced. Unique on (ActorUsername, Key); created at most
// once and never updated.
type IdempotencyRecord struct {
	ActorUsername     string
	Key               string
	RequestHash       string
	TransferReference string
	CreatedAt         time.Time
}
