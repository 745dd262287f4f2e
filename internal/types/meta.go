package types

// ResponseMeta carries non-blocking response metadata. Warnings surface
// degraded-mode information (such as a prediction served from the simulated
// path) without failing the request.
type ResponseMeta struct {
	Warnings []Warning `json:"warnings,omitempty"`
}

// Warning is a structured, machine-readable notice attached to an otherwise
// successful response.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
