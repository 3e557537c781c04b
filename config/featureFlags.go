package config

import (
	"os"
	"strings"
)

// WebhookDeliveryEnabled gates the outbox dispatcher goroutine.
// QC status and property webhooks stay queued while disabled.
//
// Set via env:
// - WEBHOOK_DELIVERY_ENABLED=true
func WebhookDeliveryEnabled() bool {
	return boolFromEnv("WEBHOOK_DELIVERY_ENABLED")
}

// SearchSyncEnabled gates publishing of listing lifecycle events and the
// searchsync push endpoint. Disable locally when no Algolia app is configured.
//
// Set via env:
// - SEARCH_SYNC_ENABLED=true
func SearchSyncEnabled() bool {
	return boolFromEnv("SEARCH_SYNC_ENABLED")
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
