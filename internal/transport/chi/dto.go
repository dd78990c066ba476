package chi

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest              ErrorCode = "bad_request"
	CodeValidationFailed        ErrorCode = "validation_failed"
	CodeUnauthorized            ErrorCode = "unauthorized"
	CodeNotFound                ErrorCode = "not_found"
	CodeMethodNotAllowed        ErrorCode = "method_not_allowed"
	CodeIndexNotReady           ErrorCode = "index_not_ready"
	CodeEmbeddingQuotaExceeded  ErrorCode = "embedding_quota_exceeded"
	CodeEmbeddingProviderError  ErrorCode = "embedding_provider_error"
	CodeRecommendationFailed    ErrorCode = "recommendation_failed"
	CodeRecommendationsDisabled ErrorCode = "recommendations_disabled"
	CodeInternalError           ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the body of POST /search and POST /product-ids.
type SearchRequest struct {
	Query       string `json:"query"`
	TopK        *int   `json:"top_k,omitempty"`
	Deduplicate *bool  `json:"deduplicate,omitempty"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

// ProductResult is one ranked variant.
type ProductResult struct {
	ProductID   int64    `json:"product_id"`
	VariantID   int64    `json:"variant_id"`
	Title       string   `json:"title"`
	Vendor      string   `json:"vendor"`
	ProductType string   `json:"product_type"`
	Price       *float64 `json:"price"`
	Colors      []string `json:"colors"`
	Sizes       []string `json:"sizes"`
	Similarity  float64  `json:"similarity"`
}

// SearchResponse is returned by POST /search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []ProductResult `json:"results"`
	Count   int             `json:"count"`
}

// AskResponse is returned by POST /ask.
type AskResponse struct {
	Query              string `json:"query"`
	Response           string `json:"response"`
	ProductsConsidered int    `json:"products_considered"`
}

// ProductIDsResponse is returned by /product-ids.
type ProductIDsResponse struct {
	Query      string  `json:"query"`
	ProductIDs []int64 `json:"product_ids"`
	Count      int     `json:"count"`
}

// VariantIDsResponse is returned by GET /variant-ids.
type VariantIDsResponse struct {
	Query      string  `json:"query"`
	VariantIDs []int64 `json:"variant_ids"`
	Count      int     `json:"count"`
}

// InfoResponse is returned by GET /.
type InfoResponse struct {
	Service   string            `json:"service"`
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Provider  string            `json:"provider"`
	Model     string            `json:"model"`
	Ready     bool              `json:"ready"`
	Documents int               `json:"documents"`
	Ask       bool              `json:"ask_enabled"`
	Endpoints map[string]string `json:"endpoints"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Documents int               `json:"documents"`
}

// ReadyResponse is returned by GET /ready.
type ReadyResponse struct {
	Ready     bool `json:"ready"`
	Documents int  `json:"documents"`
}

// UsageResponse is returned by GET /usage.
type UsageResponse struct {
	Period      string `json:"period"`
	PeriodStart int64  `json:"period_start_ms"`
	PeriodEnd   int64  `json:"period_end_ms"`
	Limit       int64  `json:"limit"`
	Used        int64  `json:"used"`
	Remaining   int64  `json:"remaining"`
	Exhausted   bool   `json:"exhausted"`
}
