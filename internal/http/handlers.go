package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"orderbot/internal/classifier"
	"orderbot/internal/domain"
	"orderbot/internal/repository"
	"orderbot/internal/service"
)

// Deps зависимости сервера. Products/Orders/Webhook равны nil, если хранилище не настроено.
type Deps struct {
	Products    *service.ProductService
	Orders      *service.OrderService
	Webhook     *service.WebhookProcessor
	Classifier  classifier.Classifier
	VerifyToken string
	AdminToken  string
	Debug       bool
}

type Server struct {
	engine      *gin.Engine
	products    *service.ProductService
	orders      *service.OrderService
	webhook     *service.WebhookProcessor
	classifier  classifier.Classifier
	verifyToken string
	adminToken  string
	debug       bool
}

func NewServer(d Deps) *Server {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())
	s := &Server{
		engine:      r,
		products:    d.Products,
		orders:      d.Orders,
		webhook:     d.Webhook,
		classifier:  d.Classifier,
		verifyToken: d.VerifyToken,
		adminToken:  d.AdminToken,
		debug:       d.Debug,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.engine.GET("/", s.health)
	s.engine.GET("/health", s.health)

	s.engine.GET("/webhooks/meta", s.verifyWebhook)
	s.engine.POST("/webhooks/meta", s.receiveWebhook)

	if s.debug {
		s.engine.GET("/debug/classify", s.debugClassify)
	}

	v1 := s.engine.Group("/api/v1/shops/:shop_id", adminAuth(s.adminToken), s.requireStore)
	{
		products := v1.Group("/products")
		products.POST("", s.createProduct)
		products.GET(":id", s.getProduct)
		products.PUT(":id", s.updateProduct)
		products.DELETE(":id", s.deleteProduct)
		products.GET("", s.listProducts)

		orders := v1.Group("/orders")
		orders.GET(":id", s.getOrder)
		orders.GET("", s.listOrders)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "store": s.products != nil})
}

func (s *Server) requireStore(c *gin.Context) {
	if s.products == nil || s.orders == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": service.ErrStoreNotConfigured.Error()})
		return
	}
	c.Next()
}

// Product handlers
type productReq struct {
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Stock    int64    `json:"stock"`
	Keywords []string `json:"keywords"`
	IsActive *bool    `json:"is_active,omitempty"`
}

func (r productReq) input() service.ProductInput {
	return service.ProductInput{Name: r.Name, Price: r.Price, Stock: r.Stock, Keywords: r.Keywords, IsActive: r.IsActive}
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param shop_id path string true "Shop ID"
// @Param input body productReq true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Router /shops/{shop_id}/products [post]
func (s *Server) createProduct(c *gin.Context) {
	shopID, ok := pathID(c, "shop_id")
	if !ok {
		return
	}
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Create(c, shopID, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param shop_id path string true "Shop ID"
// @Param id path string true "Product ID"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /shops/{shop_id}/products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	shopID, ok := pathID(c, "shop_id")
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := s.products.GetByID(c, shopID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Param shop_id path string true "Shop ID"
// @Param id path string true "Product ID"
// @Param input body productReq true "Update"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /shops/{shop_id}/products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	shopID, ok := pathID(c, "shop_id")
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Update(c, shopID, id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Deactivate product
// @Tags products
// @Param shop_id path string true "Shop ID"
// @Param id path string true "Product ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /shops/{shop_id}/products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	shopID, ok := pathID(c, "shop_id")
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.products.Deactivate(c, shopID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param shop_id path string true "Shop ID"
// @Param q query string false "Name contains"
// @Param all query bool false "Include inactive"
// @Success 200 {array} domain.Product
// @Router /shops/{shop_id}/products [get]
func (s *Server) listProducts(c *gin.Context) {
	shopID, ok := pathID(c, "shop_id")
	if !ok {
		return
	}
	list, err := s.products.List(c, shopID, c.Query("q"), c.Query("all") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Order handlers

// @Summary Get order with items
// @Tags orders
// @Produce json
// @Param shop_id path string true "Shop ID"
// @Param id path string true "Order ID"
// @Success 200 {object} service.OrderDetails
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /shops/{shop_id}/orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	shopID, ok := pathID(c, "shop_id")
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := s.orders.GetOrder(c, shopID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary List shop orders, newest first
// @Tags orders
// @Produce json
// @Param shop_id path string true "Shop ID"
// @Param status query string false "Filter by status"
// @Success 200 {array} domain.Order
// @Router /shops/{shop_id}/orders [get]
func (s *Server) listOrders(c *gin.Context) {
	shopID, ok := pathID(c, "shop_id")
	if !ok {
		return
	}
	list, err := s.orders.ListOrders(c, shopID)
	if err != nil {
		respondError(c, err)
		return
	}
	if st := c.Query("status"); st != "" {
		filtered := make([]domain.Order, 0, len(list))
		for _, o := range list {
			if string(o.Status) == st {
				filtered = append(filtered, o)
			}
		}
		list = filtered
	}
	c.JSON(http.StatusOK, list)
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotEnoughStock):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrStoreNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
