package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	_ "github.com/feedback_management/docs"
	"github.com/feedback_management/internal/handlers"
	"github.com/feedback_management/internal/routes"
)

type ServeFlags struct {
	Port       string
	WithWorker bool
}

func (f *ServeFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Port, "port", f.Port, "Listen port (default SERVER_PORT or 8080)")
	fs.BoolVar(&f.WithWorker, "with-worker", f.WithWorker, "Also run the job worker and schedulers in this process")
}

func NewServeCommand() *cobra.Command {
	f := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if f.WithWorker {
				go func() {
					if err := a.runWorker(ctx); err != nil {
						log.WithError(err).Error("in-process worker stopped")
					}
				}()
			}

			port := f.Port
			if port == "" {
				port = a.cfg.ServerPort
			}
			return serve(ctx, a, port)
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, a *app, port string) error {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	routes.SetupRoutes(router, routes.Handlers{
		JWTSecret: a.cfg.JWTSecret,
		Denylist:  a.denylist,
		Auth:      handlers.NewAuthHandler(a.users, a.cfg.JWTSecret, a.denylist),
		Public:    handlers.NewPublicHandler(a.feedback, a.requests),
		Feedback:  handlers.NewFeedbackHandler(a.feedback),
		Requests:  handlers.NewRequestHandler(a.requests),
		Policy:    handlers.NewPolicyHandler(a.policies),
		Tasks:     handlers.NewTaskHandler(a.tasks),
		Reviews:   handlers.NewReviewHandler(a.reviews, a.queue),
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server starting on port %s...", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.WithMessage(err, "run server")
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger 用 logrus 记录每个请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"clientIP": c.ClientIP(),
		}).Info("request")
	}
}
