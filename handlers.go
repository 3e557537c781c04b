package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/engineering-truestate/iqol-crm-backend/config"
	"github.com/engineering-truestate/iqol-crm-backend/models"
	"github.com/engineering-truestate/iqol-crm-backend/searchsync"
	"github.com/engineering-truestate/iqol-crm-backend/utils"
	"github.com/engineering-truestate/iqol-crm-backend/workflow"
)

// application bundles the stores and services the handlers share. Stores are
// value wrappers that resolve the Firestore singleton per call, so building
// them before the connection is up is safe.
type application struct {
	users      models.UserStore
	qc         models.QCInventoryStore
	properties models.PropertyStore
	outbox     models.WebhookOutbox
	review     *workflow.ReviewService
	search     *searchsync.Client
	syncWorker *searchsync.Worker
}

// pubsubPublisher adapts the config-level topic publisher to the workflow
// interface.
type pubsubPublisher struct{}

func (pubsubPublisher) Publish(ctx context.Context, evt config.ListingEvent) (string, error) {
	return config.PublishListingEvent(ctx, evt)
}

func newApplication(logger *logrus.Logger) *application {
	app := &application{}
	app.review = &workflow.ReviewService{
		QC: app.qc,
		Materializer: &workflow.Materializer{
			Counter:    models.FirestoreCounterStore{},
			Properties: app.properties,
			Logger:     logger,
		},
		Outbox: app.outbox,
		Events: pubsubPublisher{},
		Logger: logger,
	}

	search, err := searchsync.NewClient()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "searchsync"}).Warn("search disabled: " + err.Error())
	} else {
		app.search = search
		app.syncWorker = searchsync.NewWorker(search, app.properties, app.qc, logger)
	}
	return app
}

func requireSession(c *gin.Context) (string, bool) {
	email, ok := utils.GetUserEmailFromContext(c.Request.Context())
	if !ok || email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return email, true
}

func requireAdmin(c *gin.Context) bool {
	if _, ok := requireSession(c); !ok {
		return false
	}
	if isAdmin, ok := utils.GetIsAdminFromContext(c.Request.Context()); !ok || !isAdmin {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

func intQuery(c *gin.Context, name string) int {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// --- auth ---

func loginHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, user, err := app.users.Login(c.Request.Context(), input)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSession(c); !ok {
			return
		}
		if err := models.Logout(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

// --- user administration ---

func createUserHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := app.users.Create(c.Request.Context(), input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func setUserRoleHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var req setRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		role := models.Role(req.Role)
		if !role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}

		user, err := app.users.SetRole(c.Request.Context(), c.Param("email"), role)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func setUserActiveHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var req setActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "active is required"})
			return
		}

		if err := app.users.SetActive(c.Request.Context(), c.Param("email"), *req.Active); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": c.Param("email"), "active": *req.Active})
	}
}

// --- qc review ---

func listQCHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSession(c); !ok {
			return
		}
		filter := models.QCListFilter{
			Platform: models.Platform(c.Query("platform")),
			Stage:    models.Stage(c.Query("stage")),
			QCStatus: c.Query("qcStatus"),
			Limit:    intQuery(c, "limit"),
			Offset:   intQuery(c, "offset"),
		}

		records, err := app.qc.List(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
	}
}

func getQCHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSession(c); !ok {
			return
		}
		record, err := app.qc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"record": record})
	}
}

type reviewRequest struct {
	Status    string `json:"status"`
	ActiveTab string `json:"activeTab"`
	Comments  string `json:"comments"`
}

func reviewHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSession(c); !ok {
			return
		}
		var req reviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		result, err := app.review.UpdateStatus(c.Request.Context(), workflow.UpdateStatusInput{
			PropertyId: c.Param("id"),
			Status:     models.ReviewStatus(req.Status),
			ActiveTab:  models.ReviewTab(req.ActiveTab),
			Comments:   req.Comments,
		})
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrorRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			case errors.Is(err, workflow.ErrUnauthorizedRole):
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}

		resp := gin.H{"record": result.Inventory}
		if result.Property != nil {
			resp["property"] = result.Property
			resp["propertyCreated"] = result.Created
		}
		c.JSON(http.StatusOK, resp)
	}
}

// --- live listings ---

func listPropertiesHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSession(c); !ok {
			return
		}
		filter := models.PropertyListFilter{
			Platform:    models.Platform(c.Query("platform")),
			Status:      c.Query("status"),
			Micromarket: c.Query("micromarket"),
			Limit:       intQuery(c, "limit"),
			Offset:      intQuery(c, "offset"),
		}

		listings, err := app.properties.List(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"properties": listings, "count": len(listings)})
	}
}

func getPropertyHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSession(c); !ok {
			return
		}
		listing, err := app.properties.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"property": listing})
	}
}

// updatablePropertyFields is the allowlist for PATCH /properties/:id.
// Identity and audit fields (propertyId, qcId, qcHistory, added) stay
// server-owned.
var updatablePropertyFields = map[string]bool{
	"status":        true,
	"totalAskPrice": true,
	"micromarket":   true,
	"address":       true,
	"facing":        true,
	"floorNo":       true,
	"photos":        true,
}

func updatePropertyHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := requireSession(c)
		if !ok {
			return
		}
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		fields := make(map[string]interface{}, len(body))
		for k, v := range body {
			if !updatablePropertyFields[k] {
				c.JSON(http.StatusBadRequest, gin.H{"error": "field cannot be updated: " + k})
				return
			}
			fields[k] = v
		}
		if len(fields) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields"})
			return
		}

		now := utils.EpochMillis(time.Now())
		if _, changed := fields["status"]; changed {
			// Status changes restart the aging clock.
			fields["statusLastUpdated"] = now
			fields["daysOnStatus"] = 0
		}
		fields["lastmodified"] = now

		propertyId := c.Param("id")
		if err := app.properties.Update(c.Request.Context(), propertyId, fields); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logger := config.GetLogger()
		logger.WithFields(logrus.Fields{
			"field":       "updatePropertyHandler",
			"property_id": propertyId,
			"updated_by":  email,
		}).Info("property updated")

		app.publishPropertyUpdated(c.Request.Context(), propertyId)

		listing, err := app.properties.Get(c.Request.Context(), propertyId)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"propertyId": propertyId})
			return
		}
		c.JSON(http.StatusOK, gin.H{"property": listing})
	}
}

func (app *application) publishPropertyUpdated(ctx context.Context, propertyId string) {
	if !config.SearchSyncEnabled() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	_, err := config.PublishListingEvent(ctx, config.ListingEvent{
		ID:            uuid.NewString(),
		EventType:     config.ListingEventPropertyUpdated,
		ReferenceId:   propertyId,
		OccurredAt:    time.Now().UTC(),
		CorrelationId: cid,
	})
	if err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "handlers.go", "publishPropertyUpdated", "PublishListingEvent", propertyId, err)
	}
}

// --- search ---

func searchHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireSession(c); !ok {
			return
		}
		if app.search == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not configured"})
			return
		}

		req := searchsync.QueryRequest{
			Query:        c.Query("q"),
			Page:         intQuery(c, "page"),
			HitsPerPage:  intQuery(c, "hitsPerPage"),
			Sort:         c.Query("sort"),
			Facets:       utils.SplitAndTrim(c.Query("facets")),
			FacetFilters: utils.SplitAndTrim(c.Query("facetFilters")),
		}

		result, err := app.search.Query(c.Request.Context(), req)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// --- ops ---

type outboxReplayRequest struct {
	MessageId string `json:"messageId"`
}

func outboxReplayHandler(app *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.MessageId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "messageId is required"})
			return
		}

		msg, err := app.outbox.Requeue(c.Request.Context(), req.MessageId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"messageId":     msg.ID,
			"publishStatus": msg.PublishStatus,
			"nextAttemptAt": msg.NextAttemptAt,
		})
	}
}
