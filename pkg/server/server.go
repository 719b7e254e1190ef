// Package server contains the full set of handler functions and routes
// supported by the http api
package server

import (
	"context"
	"os"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/pkg/server/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/server/middleware"
	"github.com/tbd54566975/ssi-vc-service/pkg/server/router"
	"github.com/tbd54566975/ssi-vc-service/pkg/service"
	svcframework "github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
)

const (
	HealthPrefix        = "/health"
	ReadinessPrefix     = "/readiness"
	SwaggerPrefix       = "/swagger/*any"
	V1Prefix            = "/" + config.APIVersion
	RequestsPrefix      = "/requests"
	CredentialsPrefix   = "/credentials"
	PresentationsPrefix = "/presentations"
	KeyStorePrefix      = "/keys"
	VerificationPath    = "/verification"
	ChallengePath       = "/challenge"
	ReviewPath          = "/review"
	RevocationPath      = "/revocation"
)

// SSIServer exposes all dependencies needed to run a http server and all its services
type SSIServer struct {
	*config.ServerConfig
	*service.SSIService
	*framework.Server
}

// NewSSIServer does two things: instantiates all service and registers their HTTP bindings
func NewSSIServer(shutdown chan os.Signal, cfg config.SSIServiceConfig) (*SSIServer, error) {
	ssi, err := service.InstantiateSSIService(context.Background(), cfg.Services)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate ssi service")
	}
	return NewSSIServerWithServices(shutdown, cfg.Server, ssi)
}

// NewSSIServerWithServices registers the HTTP bindings of already instantiated services.
func NewSSIServerWithServices(shutdown chan os.Signal, cfg config.ServerConfig, ssi *service.SSIService) (*SSIServer, error) {
	// creates an HTTP server from the framework, and wrap it to extend it for the SSIS
	engine := setUpEngine(cfg, shutdown)
	httpServer := framework.NewServer(cfg, engine, shutdown)

	// service-level routers
	engine.GET(HealthPrefix, router.Health)
	engine.GET(ReadinessPrefix, router.Readiness(ssi.GetServices()))
	engine.GET(SwaggerPrefix, router.Swagger)

	// register all v1 routers
	v1 := engine.Group(V1Prefix)
	if err := CredentialRequestAPI(v1, ssi.Request, ssi.Ownership, ssi.Review); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate Credential Request API")
	}
	if err := CredentialAPI(v1, ssi.Issuance); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate Credential API")
	}
	if err := PresentationAPI(v1, ssi.Disclosure); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate Presentation API")
	}
	if err := VerificationAPI(v1, ssi.Verification); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate Verification API")
	}
	if err := KeyStoreAPI(v1, ssi.KeyStore); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate KeyStore API")
	}

	return &SSIServer{
		Server:       httpServer,
		SSIService:   ssi,
		ServerConfig: &cfg,
	}, nil
}

// setUpEngine creates the gin engine and sets up the middleware based on config
func setUpEngine(cfg config.ServerConfig, shutdown chan os.Signal) *gin.Engine {
	switch cfg.Environment {
	case config.EnvironmentDev:
		gin.SetMode(gin.DebugMode)
	case config.EnvironmentTest:
		gin.SetMode(gin.TestMode)
	case config.EnvironmentProd:
		gin.SetMode(gin.ReleaseMode)
	}

	middlewares := gin.HandlersChain{
		gin.Recovery(),
		middleware.Errors(shutdown),
		middleware.Logger(logrus.StandardLogger()),
		middleware.Metrics(),
	}
	if cfg.JagerEnabled {
		middlewares = append(gin.HandlersChain{otelgin.Middleware(config.ServiceName)}, middlewares...)
	}
	if cfg.EnableAllowAllCORS {
		middlewares = append(middlewares, middleware.CORS())
	}

	// set up engine and middleware
	engine := gin.New()
	engine.Use(middlewares...)
	return engine
}

// CredentialRequestAPI registers the HTTP routers for credential requests, their ownership challenges and
// their review
func CredentialRequestAPI(rg *gin.RouterGroup, requestService, ownershipService, reviewService svcframework.Service) error {
	requestRouter, err := router.NewRequestRouter(requestService)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating request router")
	}
	ownershipRouter, err := router.NewOwnershipRouter(ownershipService)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating ownership router")
	}
	reviewRouter, err := router.NewReviewRouter(reviewService)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating review router")
	}

	requestAPI := rg.Group(RequestsPrefix)
	requestAPI.PUT("", requestRouter.CreateCredentialRequest)
	requestAPI.GET("", requestRouter.ListCredentialRequests)
	requestAPI.GET("/:id", requestRouter.GetCredentialRequest)
	requestAPI.DELETE("/:id", requestRouter.DeleteCredentialRequest)
	requestAPI.PUT("/:id"+ChallengePath, ownershipRouter.CreateChallenge)
	requestAPI.PUT("/:id"+VerificationPath, ownershipRouter.VerifyOwnership)
	requestAPI.PUT("/:id"+ReviewPath, reviewRouter.ReviewCredentialRequest)
	return nil
}

func CredentialAPI(rg *gin.RouterGroup, service svcframework.Service) error {
	credRouter, err := router.NewCredentialRouter(service)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating credential router")
	}

	credentialAPI := rg.Group(CredentialsPrefix)
	credentialAPI.PUT(RevocationPath, credRouter.RevokeCredential)
	credentialAPI.GET("/:ref", credRouter.GetCredential)
	return nil
}

func PresentationAPI(rg *gin.RouterGroup, service svcframework.Service) error {
	presRouter, err := router.NewPresentationRouter(service)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating presentation router")
	}

	presentationAPI := rg.Group(PresentationsPrefix)
	presentationAPI.PUT("", presRouter.CreatePresentation)
	presentationAPI.PUT(VerificationPath, presRouter.VerifyPresentation)
	return nil
}

func VerificationAPI(rg *gin.RouterGroup, service svcframework.Service) error {
	verificationRouter, err := router.NewVerificationRouter(service)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating verification router")
	}

	rg.PUT(VerificationPath, verificationRouter.Verify)
	return nil
}

func KeyStoreAPI(rg *gin.RouterGroup, service svcframework.Service) error {
	keyStoreRouter, err := router.NewKeyStoreRouter(service)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating key store router")
	}

	keyStoreAPI := rg.Group(KeyStorePrefix)
	keyStoreAPI.PUT("", keyStoreRouter.CreateIssuerKey)
	keyStoreAPI.GET("/:id", keyStoreRouter.GetKeyDetails)
	return nil
}
