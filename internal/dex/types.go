// internal/dex/types.go
package dex

// CreateOrderRequest asks the trigger-order API to build an unsigned swap
// order transaction. Amounts are raw on-chain units of each mint.
type CreateOrderRequest struct {
	InputMint    string `json:"inputMint"`
	OutputMint   string `json:"outputMint"`
	Maker        string `json:"maker"`
	MakingAmount uint64 `json:"makingAmount,string"`
	TakingAmount uint64 `json:"takingAmount,string"`
	SlippageBps  int    `json:"slippageBps"`
}

// CreateOrderResponse carries the unsigned transaction (base64) plus the
// request id needed to execute it.
type CreateOrderResponse struct {
	Transaction string `json:"transaction"`
	RequestID   string `json:"requestId"`
}

type executeRequest struct {
	SignedTransaction string `json:"signedTransaction"`
	RequestID         string `json:"requestId"`
}

// ExecuteResponse reports the settlement outcome of a signed order.
type ExecuteResponse struct {
	Status    string `json:"status"`
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

const executeStatusSuccess = "Success"
