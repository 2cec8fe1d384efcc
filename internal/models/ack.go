package models

// AckStatus is carried in an acknowledgment. Duplicates are acknowledged with AckStatusOK too.
type AckStatus string

const AckStatusOK AckStatus = "OK"

// AckMessage confirms that the peer processed IdempotencyKey.
type AckMessage struct {
	IdempotencyKey string    `json:"idempotencyKey"`
	Status         AckStatus `json:"status"`
}
