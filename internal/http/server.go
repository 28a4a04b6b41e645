package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"expense-predictor/internal/log"
	"expense-predictor/internal/middleware/ratelimit"
	"expense-predictor/internal/middleware/security"
	"expense-predictor/internal/middleware/trace"
	"expense-predictor/internal/services"
	"expense-predictor/internal/sheets"
	appweb "expense-predictor/web"
)

// Predictor runs one prediction request end to end.
type Predictor interface {
	Predict(ctx context.Context, req services.PredictRequest) (services.PredictResult, error)
}

// Options wires the server's collaborators. Predictor is required.
type Options struct {
	Predictor Predictor
	// Lister backs GET /transactions; nil disables the endpoint.
	Lister sheets.TransactionLister
	// Ready backs GET /readyz; nil always reports ready.
	Ready func(ctx context.Context) error
	// Categories are listed on the index page.
	Categories         []string
	Logger             *log.Logger
	RateLimitPerMinute int
	// TrustedProxies extends the proxy networks whose X-Forwarded-For and
	// X-Real-IP headers are believed when resolving the client address.
	TrustedProxies []string
}

type Server struct {
	http.Server
	templates  *template.Template
	predictor  Predictor
	lister     sheets.TransactionLister
	ready      func(ctx context.Context) error
	categories []string
	logger     *log.Logger

	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// NewServer builds the server. Templates are parsed from the embedded FS
// at startup; a parse failure is returned.
func NewServer(addr string, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		templates:  t,
		predictor:  opts.Predictor,
		lister:     opts.Lister,
		ready:      opts.Ready,
		categories: opts.Categories,
		logger:     logger,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:   detector,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ClientIP)

	mux := http.NewServeMux()

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, err
	}
	mux.Handle("GET /static/", security.StaticAssets(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	mux.HandleFunc("/{$}", s.handleIndex)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/predict", s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})(http.HandlerFunc(s.handlePredict)))
	mux.HandleFunc("/transactions", s.handleTransactions)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})

	s.Server = http.Server{
		Addr: addr,
		Handler: chain(mux,
			s.tracer.Handler,
			recoverPanic,
			security.Headers(security.DefaultHeadersConfig()),
			s.detector.Middleware,
		),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    MaxBodyBytes,
	}
	return s, nil
}

// Shutdown stops accepting connections, waits for in-flight requests and
// releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
