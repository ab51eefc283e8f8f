package models

// Collection names carried by change events.
const (
	CollectionCoins        = "coins"
	CollectionTransactions = "transactions"
	CollectionStats        = "asset_stats"
	CollectionUsers        = "users"
)

// ChangeEvent says that something in a collection changed for a user. It
// carries no diff; consumers re-read what they need.
type ChangeEvent struct {
	UserID     string `json:"user_id"`
	Collection string `json:"collection"`
}
