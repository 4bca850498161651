package request

type DeliveryReceipt struct {
	Status string `json:"status" validate:"required,oneof=delivered failed"`
	Error  string `json:"error" validate:"max=500"`
}
