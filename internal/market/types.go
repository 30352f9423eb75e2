// internal/market/types.go
package market

// Direction of a trade signal.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// TokenPrice is a point-in-time USD quote plus the token's on-chain
// decimal precision.
type TokenPrice struct {
	Symbol   string  `json:"symbol"`
	USDPrice float64 `json:"usdPrice"`
	Decimals uint8   `json:"decimals"`
}

// Signal is one directional trade signal from the external feed.
type Signal struct {
	Token      string    `json:"token"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // 0..1
	Urgency    float64   `json:"urgency"`    // 0..1
}

// BaseSymbol is the base currency every session is denominated in.
const BaseSymbol = "SOL"
