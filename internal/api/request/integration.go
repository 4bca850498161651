package request

type CreateIntegration struct {
	Name               string  `json:"name" validate:"required,max=120"`
	Provider           string  `json:"provider" validate:"required,oneof=datadog grafana prometheus generic"`
	Secret             string  `json:"secret" validate:"required,min=16"`
	SignatureHeader    string  `json:"signature_header,omitempty"`
	SignatureAlgorithm string  `json:"signature_algorithm" validate:"omitempty,oneof=sha256 sha1"`
	SignatureFormat    string  `json:"signature_format" validate:"omitempty,oneof=hex base64"`
	DefaultServiceID   *string `json:"default_service_id,omitempty"`
	DedupWindowMinutes int     `json:"dedup_window_minutes" validate:"min=0,max=120"`
}
