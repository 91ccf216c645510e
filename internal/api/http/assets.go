package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/GriffinCanCode/jsgist/internal/runner"
)

// minGzipSize is below the prelude's size; gzhttp's default is not
const minGzipSize = 256

// RunnerScript serves the bootstrap prelude runners load from the url
// parameter of their sandbox address
func RunnerScript() gin.HandlerFunc {
	prelude := runner.Prelude()
	modified := time.Now()
	serve := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		http.ServeContent(w, r, "jsgist-runner.js", modified, bytes.NewReader(prelude))
	})

	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(minGzipSize))
	if err != nil {
		return gin.WrapH(gzhttp.GzipHandler(serve))
	}
	return gin.WrapH(wrap(serve))
}

// Metrics serves the Prometheus exposition for the server's registry
func (h *Handlers) Metrics() gin.HandlerFunc {
	return gin.WrapH(h.metrics.Handler())
}

// MetricsJSON returns a summary for dashboards
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
