package observability

const (
	MUsecaseRequests     MetricKey = "usecase_requests_total"
	MUsecaseDuration     MetricKey = "usecase_duration_seconds"
	MHTTPRequests        MetricKey = "http_requests_total"
	MHTTPRequestDuration MetricKey = "http_request_duration_seconds"
	MTxConflicts         MetricKey = "transaction_conflicts_total"
	MStockLowEvents      MetricKey = "stock_low_events_total"
)
