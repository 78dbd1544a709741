package ops

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/dep-queue-worker/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusProvider reports the consumer pool state
type StatusProvider interface {
	Status() worker.Status
}

// HealthChecker checks an optional dependency such as the ledger database
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// FailureCounter counts ledger rows for a scenario
type FailureCounter interface {
	CountFailures(ctx context.Context, scenario string) (int, error)
}

// Dependencies holds everything the ops routes read from
type Dependencies struct {
	Logger     *slog.Logger
	Supervisor StatusProvider
	Ledger     HealthChecker  // optional
	Failures   FailureCounter // optional
	Service    string
	Mode       string
	Scenario   int
}

// SetupRouter configures and returns the Gin router for the ops endpoints
func SetupRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	// healthy while at least one consumer holds a queue session
	r.GET("/health", func(c *gin.Context) {
		st := deps.Supervisor.Status()

		body := gin.H{
			"service":          deps.Service,
			"active_consumers": st.ActiveConsumers,
		}

		if deps.Ledger != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ledger.HealthCheck(ctx); err != nil {
				body["ledger"] = "unavailable"
				_ = c.Error(err)
			} else {
				body["ledger"] = "ok"
			}
		}

		if st.ActiveConsumers == 0 {
			body["status"] = "unavailable"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}

		body["status"] = "healthy"
		c.JSON(http.StatusOK, body)
	})

	r.GET("/status", func(c *gin.Context) {
		body := gin.H{
			"service":  deps.Service,
			"mode":     deps.Mode,
			"scenario": deps.Scenario,
			"pool":     deps.Supervisor.Status(),
		}

		if deps.Failures != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			n, err := deps.Failures.CountFailures(ctx, strconv.Itoa(deps.Scenario))
			if err != nil {
				_ = c.Error(err)
			} else {
				body["recorded_failures"] = n
			}
		}

		c.JSON(http.StatusOK, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
