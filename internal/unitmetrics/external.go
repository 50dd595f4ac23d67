package unitmetrics

// FetchTaskName loads externally computed metrics from a URI.
const FetchTaskName = "fetch_unit_metrics.1"

// FetchParams are the parameters of FetchTaskName.
type FetchParams struct {
	UnitMetricsURI string `json:"unit_metrics_uri"`
}

// ExternalMetric is one metric computed outside the provider registry. Data
// is keyed by decimal unit id; units may be missing.
type ExternalMetric struct {
	Name    string             `json:"name"`
	Label   string             `json:"label"`
	Tooltip string             `json:"tooltip,omitempty"`
	Data    map[string]float64 `json:"data"`
}
