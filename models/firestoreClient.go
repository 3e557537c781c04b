package models

import (
	"cloud.google.com/go/firestore"

	"github.com/engineering-truestate/iqol-crm-backend/config"
)

// fsClient prefers an injected client (tests) and falls back to the shared
// lazy singleton. Stores are constructed at boot before the connection is
// up; the readiness gate keeps handlers out until GetFirestore is non-nil.
func fsClient(c *firestore.Client) *firestore.Client {
	if c != nil {
		return c
	}
	return config.GetFirestore()
}
