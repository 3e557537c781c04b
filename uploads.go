package main

import (
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/engineering-truestate/iqol-crm-backend/config"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var photoMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// uploadPropertyPhotoHandler streams a multipart photo into the listing
// bucket and records the object key on the listing document. Object keys are
// properties/{propertyId}/{uuid}{ext}, so re-uploads never collide.
func uploadPropertyPhotoHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := requireSession(c)
		if !ok {
			return
		}
		logger := config.GetLogger()
		propertyId := c.Param("id")

		// Reject listings that don't exist before touching the bucket.
		if _, err := app.properties.Get(c.Request.Context(), propertyId); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}
		mimeType := fileHeader.Header.Get("Content-Type")
		ext, allowed := photoMimeTypes[mimeType]
		if !allowed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer file.Close()

		objectKey := path.Join("properties", propertyId, uuid.NewString()+ext)
		if err := utils.UploadFileToGCS(c.Request.Context(), objectKey, file); err != nil {
			config.LogError(logger, "uploads.go", "uploadPropertyPhotoHandler", "UploadFileToGCS", objectKey, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
			return
		}

		if err := app.properties.AddPhoto(c.Request.Context(), propertyId, objectKey); err != nil {
			// The object is already in the bucket; clean it up so the
			// document stays the source of truth.
			_ = utils.DeleteFileFromGCS(c.Request.Context(), objectKey)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		logger.WithFields(logrus.Fields{
			"field":       "uploadPropertyPhotoHandler",
			"property_id": propertyId,
			"object_key":  objectKey,
			"uploaded_by": email,
		}).Info("photo uploaded")

		c.JSON(http.StatusCreated, gin.H{
			"objectKey": objectKey,
			"accessUrl": utils.BuildObjectAccessURL(objectKey),
		})
	}
}

// signedPhotoURLHandler returns a short-lived signed GET URL for a photo.
// The object key comes in as a query param because keys contain slashes.
func signedPhotoURLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSession(c); !ok {
			return
		}
		objectKey := strings.TrimSpace(c.Query("objectKey"))
		if objectKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "objectKey is required"})
			return
		}
		if !strings.HasPrefix(objectKey, "properties/"+c.Param("id")+"/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "objectKey does not belong to this property"})
			return
		}

		signed, err := utils.SignDownloadURL(objectKey, 15*time.Minute)
		if err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "uploads.go", "signedPhotoURLHandler", "SignDownloadURL", objectKey, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not sign url"})
			return
		}
		c.JSON(http.StatusOK, signed)
	}
}

func deletePropertyPhotoHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSession(c); !ok {
			return
		}
		propertyId := c.Param("id")
		objectKey := path.Join("properties", propertyId, c.Param("object"))

		if err := utils.DeleteFileFromGCS(c.Request.Context(), objectKey); err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "uploads.go", "deletePropertyPhotoHandler", "DeleteFileFromGCS", objectKey, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "delete failed"})
			return
		}
		if err := app.properties.RemovePhoto(c.Request.Context(), propertyId, objectKey); err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"objectKey": objectKey, "deleted": true})
	}
}
