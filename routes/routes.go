package routes

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"deepfakeapi/detect"
	"deepfakeapi/filecheck"
	"deepfakeapi/globals"
	"deepfakeapi/metrics"
	"deepfakeapi/middleware"
	"deepfakeapi/ratelim"
	"deepfakeapi/reqlog"
	"deepfakeapi/uploads"
	"deepfakeapi/utils"
)

// Deps carries everything the route table needs. Metrics and Registry may
// be nil; an empty Proxies trusts no forwarding header.
type Deps struct {
	Detect     *detect.Handler
	Uploads    *uploads.Handler
	Registry   *filecheck.Registry
	RequestLog *reqlog.Logger
	Limiter    *ratelim.RateLimiter
	Metrics    *metrics.Collector
	JWTSecret  []byte
	Proxies    utils.TrustedProxies
	Logger     *zap.Logger
}

// NewRouter builds the full route table.
func NewRouter(d Deps) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	AddSystemRoutes(router, d)
	AddDetectRoutes(router, d)
	AddUploadRoutes(router, d)
	return router
}

// NewHandler wraps the router in the server middleware: CORS, security
// headers, trusted proxy resolution, request ids, access logging, the
// request log and panic recovery.
func NewHandler(d Deps, allowedOrigins []string) http.Handler {
	router := NewRouter(d)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
	})
	return middleware.Wrap(router,
		corsHandler.Handler,
		middleware.SecurityHeaders,
		middleware.RealIP(d.Proxies),
		middleware.RequestID,
		middleware.Logging(d.Logger),
		reqlog.Middleware(d.RequestLog, d.Logger, "/metrics"),
		middleware.Recovery(d.Logger),
	)
}

// limited chains metrics and the named rate limit policy in front of a
// route.
func limited(d Deps, path, policy string, extra ...func(httprouter.Handle) httprouter.Handle) func(httprouter.Handle) httprouter.Handle {
	mws := []func(httprouter.Handle) httprouter.Handle{d.Metrics.Route(path), d.Limiter.Policy(policy, path)}
	return middleware.Chain(append(mws, extra...)...)
}

func AddSystemRoutes(router *httprouter.Router, d Deps) {
	router.GET("/", limited(d, "/", ratelim.PolicyDefault)(Root))
	// Health checks are never rate limited.
	router.GET("/api/health", d.Metrics.Route("/api/health")(Health))
	router.GET("/api/stats", limited(d, "/api/stats", ratelim.PolicyDefault)(Stats(d.RequestLog, d.Logger)))
	if d.Metrics != nil {
		router.GET("/metrics", d.Metrics.Handler())
	}
}

func AddDetectRoutes(router *httprouter.Router, d Deps) {
	router.POST("/api/predict", limited(d, "/api/predict", ratelim.PolicyPredict)(d.Detect.Predict))
	router.POST("/api/analyze-video", limited(d, "/api/analyze-video", ratelim.PolicyVideo)(d.Detect.AnalyzeVideo))
	router.POST("/api/analyze-url", limited(d, "/api/analyze-url", ratelim.PolicyURL)(d.Detect.AnalyzeURL))
}

func AddUploadRoutes(router *httprouter.Router, d Deps) {
	router.GET("/api/upload", limited(d, "/api/upload", ratelim.PolicyDefault)(d.Uploads.List))
	router.POST("/api/upload", limited(d, "/api/upload", ratelim.PolicyDefault)(d.Uploads.Upload))
	router.POST("/api/upload/temp", limited(d, "/api/upload/temp", ratelim.PolicyDefault)(d.Uploads.UploadTemp))
	router.POST("/api/upload/batch", limited(d, "/api/upload/batch", ratelim.PolicyDefault)(d.Uploads.UploadBatch))
	router.POST("/api/upload/check", limited(d, "/api/upload/check", ratelim.PolicyDefault)(d.Registry.CheckFileExists))
	router.GET("/api/upload/:filename", limited(d, "/api/upload/:filename", ratelim.PolicyDefault)(d.Uploads.GetFileInfo))
	router.DELETE("/api/upload/:filename",
		limited(d, "/api/upload/:filename", ratelim.PolicyDefault, middleware.Authenticate(d.JWTSecret))(d.Uploads.DeleteFile),
	)
}

func Root(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"message": "Welcome to Deepfake Detector API!"})
}

func Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"status":  "healthy",
		"service": globals.ServiceName,
		"version": globals.ServiceVersion,
	})
}

// Stats serves the aggregate request log statistics.
func Stats(l *reqlog.Logger, logger *zap.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		st, err := l.Stats()
		if err != nil {
			logger.Error("read request stats", zap.Error(err))
			utils.RespondWithErr(w, err)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, st)
	}
}
