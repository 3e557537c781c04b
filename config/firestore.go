package config

import (
	"context"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var (
	fsClient *firestore.Client
)

func GetFirestore() *firestore.Client {
	return fsClient
}

func init() {
	// Load env from .env
	godotenv.Load()
	// IMPORTANT (Cloud Run):
	// Do NOT block startup in init() waiting for Firestore.
	// Cloud Run requires the container to start listening on $PORT quickly.
}

func firestoreProjectID() string {
	if v := os.Getenv("FIRESTORE_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

// ConnectFirestoreWithRetry connects and sets the global client.
// Call this from main() AFTER the HTTP server is listening.
func ConnectFirestoreWithRetry() {
	logger := GetLogger()
	projectID := firestoreProjectID()

	var opts []option.ClientOption
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// Explicit JSON is only for local development.
	if credJSON := strings.TrimSpace(os.Getenv("FIRESTORE_CREDENTIALS_JSON")); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	var attempt int
	for {
		attempt++
		client, err := firestore.NewClient(context.Background(), projectID, opts...)
		if err == nil {
			fsClient = client
			return
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":      "firestore",
			"project_id": projectID,
			"attempt":    attempt,
		}).Warn("failed to connect firestore; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
