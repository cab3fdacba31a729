// Package router wires the HTTP surface of the bloglist service: routes,
// middlewares and the mapping of service errors to status codes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bloglist/internal/auth"
	"github.com/patric-chuzhbe/bloglist/internal/gzippedhttp"
	"github.com/patric-chuzhbe/bloglist/internal/logger"
	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/service"
)

const maxRequestBodyBytes = 1 << 20

type blogService interface {
	ListBlogs(ctx context.Context) ([]models.BlogView, error)

	CreateBlog(ctx context.Context, identity auth.Identity, request models.CreateBlogRequest) (models.BlogView, error)

	DeleteBlog(ctx context.Context, identity auth.Identity, blogID string) (models.DeleteBlogResponse, error)

	UpdateBlog(ctx context.Context, identity auth.Identity, blogID string, request models.UpdateBlogRequest) error
}

type userService interface {
	RegisterUser(ctx context.Context, request models.RegisterUserRequest) (models.UserView, error)

	ListUsers(ctx context.Context) ([]models.UserView, error)

	Login(ctx context.Context, request models.LoginRequest) (models.LoginResponse, error)
}

type maintenanceService interface {
	GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error)

	Ping(ctx context.Context) error
}

type appService interface {
	blogService
	userService
	maintenanceService
}

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
	IdentifyUserIfValid(h http.Handler) http.Handler
	RequireIdentity(h http.Handler) http.Handler
}

type metricsCollector interface {
	RequestMetrics(next http.Handler) http.Handler
	Handler() http.Handler
}

type subnetGuard interface {
	TrustedSubnetOnly(h http.Handler) http.Handler
}

// Router holds the handlers of every HTTP endpoint.
type Router struct {
	service appService
}

type initOptions struct {
	corsOrigins []string
}

// InitOption configures New.
type InitOption func(*initOptions)

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins []string) InitOption {
	return func(options *initOptions) {
		options.corsOrigins = origins
	}
}

// New builds the chi router serving the bloglist API.
func New(
	svc appService,
	theAuth authenticator,
	metrics metricsCollector,
	ipChecker subnetGuard,
	optionsProto ...InitOption,
) http.Handler {
	options := &initOptions{
		corsOrigins: []string{"*"},
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	myRouter := &Router{service: svc}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: options.corsOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Content-Encoding", "Accept-Encoding"},
	}).Handler

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		logger.WithLoggingHTTPMiddleware,
		metrics.RequestMetrics,
		corsHandler,
		gzippedhttp.UngzipRequest,
		gzippedhttp.GzipResponse,
	)

	router.Get(`/ping`, myRouter.GetPing)
	router.Handle(`/metrics`, metrics.Handler())

	router.Route(`/api`, func(api chi.Router) {
		api.Route(`/blogs`, func(blogs chi.Router) {
			blogs.Get(`/`, myRouter.GetApiblogs)
			blogs.With(theAuth.AuthenticateUser, theAuth.RequireIdentity).Post(`/`, myRouter.PostApiblogs)
			blogs.With(theAuth.AuthenticateUser, theAuth.RequireIdentity).Delete(`/{id}`, myRouter.DeleteApiblogsID)
			blogs.With(theAuth.IdentifyUserIfValid).Put(`/{id}`, myRouter.PutApiblogsID)
		})

		api.Get(`/users`, myRouter.GetApiusers)
		api.Post(`/users`, myRouter.PostApiusers)
		api.Post(`/login`, myRouter.PostApilogin)

		api.With(ipChecker.TrustedSubnetOnly).Get(`/internal/stats`, myRouter.GetApiinternalstats)
	})

	return router
}

// GetPing answers 200 when the storage is reachable.
func (router *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := router.service.Ping(request.Context()); err != nil {
		logger.Log.Debugln("Error calling the `router.service.Ping()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

// GetApiblogs lists every blog with its owner summary.
func (router *Router) GetApiblogs(response http.ResponseWriter, request *http.Request) {
	blogs, err := router.service.ListBlogs(request.Context())
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, blogs)
}

// PostApiblogs creates a blog owned by the authenticated requester. Any
// owner field in the body is ignored.
func (router *Router) PostApiblogs(response http.ResponseWriter, request *http.Request) {
	identity, _ := auth.IdentityFromContext(request.Context())

	var payload models.CreateBlogRequest
	if !decodeJSONBody(response, request, &payload) {
		return
	}

	blog, err := router.service.CreateBlog(request.Context(), identity, payload)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, blog)
}

// DeleteApiblogsID deletes a blog owned by the authenticated requester.
func (router *Router) DeleteApiblogsID(response http.ResponseWriter, request *http.Request) {
	identity, _ := auth.IdentityFromContext(request.Context())

	result, err := router.service.DeleteBlog(request.Context(), identity, chi.URLParam(request, "id"))
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, result)
}

// PutApiblogsID updates a blog and answers 204 with an empty body.
func (router *Router) PutApiblogsID(response http.ResponseWriter, request *http.Request) {
	identity, _ := auth.IdentityFromContext(request.Context())

	var payload models.UpdateBlogRequest
	if !decodeJSONBody(response, request, &payload) {
		return
	}

	err := router.service.UpdateBlog(request.Context(), identity, chi.URLParam(request, "id"), payload)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

func (router *Router) PostApiusers(response http.ResponseWriter, request *http.Request) {
	var payload models.RegisterUserRequest
	if !decodeJSONBody(response, request, &payload) {
		return
	}

	usr, err := router.service.RegisterUser(request.Context(), payload)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, usr)
}

func (router *Router) GetApiusers(response http.ResponseWriter, request *http.Request) {
	users, err := router.service.ListUsers(request.Context())
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, users)
}

func (router *Router) PostApilogin(response http.ResponseWriter, request *http.Request) {
	var payload models.LoginRequest
	if !decodeJSONBody(response, request, &payload) {
		return
	}

	result, err := router.service.Login(request.Context(), payload)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, result)
}

// GetApiinternalstats reports storage counters. Only reachable from the
// trusted subnet.
func (router *Router) GetApiinternalstats(response http.ResponseWriter, request *http.Request) {
	stats, err := router.service.GetInternalStats(request.Context())
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, stats)
}

func decodeJSONBody(response http.ResponseWriter, request *http.Request, target interface{}) bool {
	request.Body = http.MaxBytesReader(response, request.Body, maxRequestBodyBytes)

	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		logger.Log.Debugln("Error decoding the request body: ", zap.Error(err))
		writeJSON(response, http.StatusBadRequest, models.ErrorResponse{Error: "malformed JSON body"})
		return false
	}

	return true
}

func writeJSON(response http.ResponseWriter, status int, body interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(body); err != nil {
		logger.Log.Debugln("Error encoding the response body: ", zap.Error(err))
	}
}

// statusFromError maps a service error kind to its HTTP status. Both
// authentication and authorization failures answer 401.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAuthentication), errors.Is(err, service.ErrAuthorization):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

func writeServiceError(response http.ResponseWriter, err error) {
	status := statusFromError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Log.Errorw("request failed", zap.Error(err))
		message = "internal server error"
	}

	writeJSON(response, status, models.ErrorResponse{Error: message})
}
