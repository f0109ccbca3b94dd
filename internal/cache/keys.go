package cache

import "fmt"

// TokenKey returns the key holding the bearer token for a provider.
func TokenKey(provider string) string {
	return provider + "_token"
}

// VideoKey returns the key holding the resolved video URL of a job.
func VideoKey(provider, jobID string) string {
	return fmt.Sprintf("%s_video_%s", provider, jobID)
}
