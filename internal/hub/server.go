package hub

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/munkholm-systems/lagerpuls/internal/enrich"
	"github.com/munkholm-systems/lagerpuls/internal/event"
	"github.com/munkholm-systems/lagerpuls/internal/inventory"
	"go.uber.org/zap"
)

// BroadcastPolicy selects what the ingest endpoint pushes to clients.
type BroadcastPolicy string

const (
	// PolicyEnrich resolves reference ids to display names and broadcasts
	// the flat item; delete events are intentionally not broadcast.
	PolicyEnrich BroadcastPolicy = "enrich"
	// PolicyPassthrough broadcasts the raw change envelope unchanged for
	// every known kind.
	PolicyPassthrough BroadcastPolicy = "passthrough"
)

// DefaultEventName is the push event clients listen for.
const DefaultEventName = "ReceiveUpdate"

var (
	errMissingDispatcher = errors.New("dispatcher dependency required")
	errMissingResolver   = errors.New("resolver dependency required")
	errMissingInventory  = errors.New("inventory service dependency required")
	errUnknownPolicy     = errors.New("unknown broadcast policy")
)

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Dispatcher *Dispatcher
	Resolver   *enrich.Resolver
	Inventory  *inventory.Service
	Policy     BroadcastPolicy
	EventName  string
	Logger     *zap.Logger
}

// NewHTTPHandler wires the ingest, subscribe, snapshot, and options routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}
	if deps.Inventory == nil {
		return nil, errMissingInventory
	}
	policy := deps.Policy
	if policy == "" {
		policy = PolicyEnrich
	}
	switch policy {
	case PolicyEnrich, PolicyPassthrough:
	default:
		return nil, errUnknownPolicy
	}
	if policy == PolicyEnrich && deps.Resolver == nil {
		return nil, errMissingResolver
	}

	eventName := deps.EventName
	if eventName == "" {
		eventName = DefaultEventName
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		dispatcher: deps.Dispatcher,
		resolver:   deps.Resolver,
		inventory:  deps.Inventory,
		policy:     policy,
		eventName:  eventName,
		logger:     logger,
	}

	router.POST("/api/realtime/beholdning", handler.handleIngest)
	router.GET("/realtime/beholdning", handler.handleSubscribe)
	router.GET("/api/beholdning", handler.handleSnapshot)
	router.GET("/api/options", handler.handleOptions)

	return router, nil
}

type httpHandler struct {
	dispatcher *Dispatcher
	resolver   *enrich.Resolver
	inventory  *inventory.Service
	policy     BroadcastPolicy
	eventName  string
	logger     *zap.Logger
}

// handleIngest accepts one forwarded change envelope, applies the broadcast
// policy, and returns 200 for both broadcasts and intentional drops. The
// response body is informational only; the forwarder ignores it.
func (h *httpHandler) handleIngest(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
		return
	}

	var changeEvent event.ChangeEvent
	if err := json.Unmarshal(body, &changeEvent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if err := changeEvent.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	switch changeEvent.Kind {
	case event.KindInsert, event.KindUpdate, event.KindDelete:
	default:
		// Other kinds are observed on the stream but never relayed.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	switch h.policy {
	case PolicyPassthrough:
		h.dispatcher.Broadcast(event.Frame{
			Event: h.eventName,
			Kind:  changeEvent.Kind,
			Data:  json.RawMessage(body),
		})
	case PolicyEnrich:
		if changeEvent.Kind == event.KindDelete {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		item := h.resolver.EnrichRow(c.Request.Context(), changeEvent.Record)
		data, err := json.Marshal(item)
		if err != nil {
			h.logger.Error("failed to encode enriched item", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encode_failed"})
			return
		}
		h.dispatcher.Broadcast(event.Frame{
			Event: h.eventName,
			Kind:  changeEvent.Kind,
			Data:  data,
		})
	}

	h.logger.Info("change event relayed",
		zap.String("kind", string(changeEvent.Kind)),
		zap.String("table", changeEvent.Table),
		zap.Int("subscribers", h.dispatcher.SubscriberCount()))
	c.JSON(http.StatusOK, gin.H{"status": "broadcast"})
}

func (h *httpHandler) handleSubscribe(c *gin.Context) {
	h.serveSubscriber(c.Writer, c.Request)
}

func (h *httpHandler) handleSnapshot(c *gin.Context) {
	items, err := h.inventory.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("snapshot failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot_failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *httpHandler) handleOptions(c *gin.Context) {
	options, err := h.inventory.Options(c.Request.Context())
	if err != nil {
		h.logger.Error("options failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "options_failed"})
		return
	}
	c.JSON(http.StatusOK, options)
}
