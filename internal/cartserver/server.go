// Package cartserver hosts the storefront cart API: phone login with a demo
// OTP, a small product catalog, and the per-user cart endpoints the sync
// client consumes.
package cartserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Run boots the HTTP API using the supplied configuration and store.
func Run(ctx context.Context, cfg Config, store Store) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if store == nil {
		return fmt.Errorf("store is required")
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	handler := &httpHandler{
		logger: logger,
		store:  store,
		otps:   newOTPRegistry(cfg.OTPTTL),
		tokens: newTokenIssuer(cfg),
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cart api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/auth/app/login", handler.handleLogin)
	api.POST("/auth/app/verify", handler.handleVerify)
	api.GET("/product", handler.handleListProducts)
	api.GET("/product/:id", handler.handleFetchProduct)

	authed := api.Group("")
	authed.Use(bearerMiddleware(handler.tokens))
	authed.GET("/auth/me", handler.handleMe)
	authed.GET("/cart", handler.handleFetchCart)
	authed.POST("/cart/add", handler.handleAddToCart)
	authed.DELETE("/cart/item/:id", handler.handleDeleteCartItem)

	return router
}

type httpHandler struct {
	logger *zap.Logger
	store  Store
	otps   *otpRegistry
	tokens *tokenIssuer
}

type loginRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type verifyRequest struct {
	Phone string `json:"phone" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

type addToCartRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int64  `json:"quantity"`
	Price     int64  `json:"price"`
}

// handleLogin issues a one-time code for the phone number. A real deployment
// would hand the code to an SMS gateway; the demo returns it in the response
// so the flow stays self-contained.
func (handler *httpHandler) handleLogin(ctx *gin.Context) {
	var request loginRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, failureResponse("phone is required"))
		return
	}
	code, err := handler.otps.issue(request.Phone)
	if err != nil {
		handler.logger.Error("otp issue failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failureResponse("could not issue code"))
		return
	}
	ctx.JSON(http.StatusOK, successResponse(gin.H{"otp": code}))
}

func (handler *httpHandler) handleVerify(ctx *gin.Context) {
	var request verifyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, failureResponse("phone and otp are required"))
		return
	}
	if !handler.otps.redeem(request.Phone, request.OTP) {
		ctx.JSON(http.StatusUnauthorized, failureResponse("code is wrong or expired"))
		return
	}
	user, err := handler.store.EnsureUser(ctx.Request.Context(), request.Phone)
	if err != nil {
		handler.logger.Error("ensure user failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failureResponse("could not register user"))
		return
	}
	accessToken, err := handler.tokens.mint(user.ID)
	if err != nil {
		handler.logger.Error("token mint failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failureResponse("could not issue token"))
		return
	}
	ctx.JSON(http.StatusOK, successResponse(gin.H{
		"tokens": gin.H{"accessToken": accessToken},
		"user":   gin.H{"_id": user.ID, "phone": user.Phone},
	}))
}

func (handler *httpHandler) handleMe(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, successResponse(gin.H{"_id": authenticatedUser(ctx)}))
}

func (handler *httpHandler) handleListProducts(ctx *gin.Context) {
	products, err := handler.store.ListProducts(ctx.Request.Context())
	if err != nil {
		handler.logger.Error("list products failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failureResponse("catalog unavailable"))
		return
	}
	payloads := make([]gin.H, 0, len(products))
	for _, product := range products {
		payloads = append(payloads, productPayload(product))
	}
	ctx.JSON(http.StatusOK, successResponse(payloads))
}

func (handler *httpHandler) handleFetchProduct(ctx *gin.Context) {
	product, err := handler.store.ProductByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			ctx.JSON(http.StatusNotFound, failureResponse("product not found"))
			return
		}
		handler.logger.Error("fetch product failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failureResponse("catalog unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, successResponse(productPayload(product)))
}

func (handler *httpHandler) handleFetchCart(ctx *gin.Context) {
	lines, err := handler.store.LinesByUser(ctx.Request.Context(), authenticatedUser(ctx))
	if err != nil {
		handler.logger.Error("fetch cart failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failureResponse("cart unavailable"))
		return
	}
	payloads := make([]gin.H, 0, len(lines))
	for _, line := range lines {
		payloads = append(payloads, linePayload(line))
	}
	ctx.JSON(http.StatusOK, successResponse(gin.H{"items": payloads}))
}

func (handler *httpHandler) handleAddToCart(ctx *gin.Context) {
	var request addToCartRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, failureResponse("product_id is required"))
		return
	}
	if request.Quantity == 0 {
		request.Quantity = 1
	}
	line, err := handler.store.UpsertLine(ctx.Request.Context(), authenticatedUser(ctx), request.ProductID, request.Price, request.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, ErrProductNotFound):
			ctx.JSON(http.StatusNotFound, failureResponse("product not found"))
		case errors.Is(err, ErrQuantityBelowMinimum):
			ctx.JSON(http.StatusBadRequest, failureResponse("quantity cannot drop below one"))
		default:
			handler.logger.Error("upsert line failed", zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, failureResponse("cart update failed"))
		}
		return
	}
	ctx.JSON(http.StatusOK, successResponse(linePayload(line)))
}

func (handler *httpHandler) handleDeleteCartItem(ctx *gin.Context) {
	err := handler.store.DeleteLine(ctx.Request.Context(), authenticatedUser(ctx), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, ErrLineNotFound) {
			ctx.JSON(http.StatusNotFound, failureResponse("cart line not found"))
			return
		}
		handler.logger.Error("delete line failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failureResponse("cart update failed"))
		return
	}
	ctx.JSON(http.StatusOK, successResponse(gin.H{"deleted": true}))
}

func productPayload(product StoredProduct) gin.H {
	imageURL := []string{}
	if product.ImageRef != "" {
		imageURL = []string{product.ImageRef}
	}
	return gin.H{
		"_id":         product.ID,
		"name":        product.Name,
		"price":       product.PriceCents,
		"imageUrl":    imageURL,
		"category":    product.Category,
		"company":     product.Vendor,
		"description": product.Description,
	}
}

func linePayload(line StoredLine) gin.H {
	productRef := productPayload(line.Snapshot)
	productRef["_id"] = line.ProductID
	return gin.H{
		"_id":             line.ID,
		"product_id":      productRef,
		"quantity":        line.Quantity,
		"price":           line.PriceCents,
		"productSnapshot": productPayload(line.Snapshot),
	}
}

func successResponse(data any) gin.H {
	return gin.H{"success": true, "data": data}
}

func failureResponse(message string) gin.H {
	return gin.H{"success": false, "message": message}
}
