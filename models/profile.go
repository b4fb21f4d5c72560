package models

// UserProfile carries the account data position sizing needs.
type UserProfile struct {
	AvailableBalance    float64 `json:"available_balance"`
	MaxLeverage         float64 `json:"max_leverage"`
	DefaultPositionSize float64 `json:"default_position_size"` // percent of balance risked per trade
	DefaultExchange     string  `json:"default_exchange"`
	DefaultSymbol       string  `json:"default_symbol"`
	DefaultInterval     string  `json:"default_interval"`
}
