package paystack

import (
	"encoding/json"
	"fmt"

	"wallet-service/internal/core/ports"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "x-paystack-signature"

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// ParseEvent decodes a webhook body into a settlement event.
// The body must already have passed signature verification.
func ParseEvent(body []byte) (ports.SettlementEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ports.SettlementEvent{}, fmt.Errorf("parse paystack webhook: %w", err)
	}
	return ports.SettlementEvent{
		Type:      p.Event,
		Reference: p.Data.Reference,
		Status:    p.Data.Status,
	}, nil
}
