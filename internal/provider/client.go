package provider

import "net/http"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=providermock -destination=providermock/http_client.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
