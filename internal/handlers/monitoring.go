package handlers

import (
	"errors"
	"net/http"
	"time"

	"minicorr/internal/poller"

	"github.com/gin-gonic/gin"
)

const (
	errStartMonitoring = "failed to start monitoring"
	errStartLogging    = "failed to start event log"
	errStopLogging     = "failed to stop event log"
)

type monitoringRequest struct {
	Interval        string  `json:"interval"`
	IntervalSeconds float64 `json:"interval_s"`
}

// StartMonitoringRequest is an exported model for Swagger docs of the monitoring payload.
type StartMonitoringRequest struct {
	// Poll interval as a Go duration; the configured default when empty
	Interval string `json:"interval,omitempty" example:"20s"`
	// Poll interval in seconds, used when interval is empty
	IntervalSeconds float64 `json:"interval_s,omitempty" example:"20"`
}

func (r monitoringRequest) duration(def time.Duration) (time.Duration, error) {
	switch {
	case r.Interval != "":
		return time.ParseDuration(r.Interval)
	case r.IntervalSeconds != 0:
		return time.Duration(r.IntervalSeconds * float64(time.Second)), nil
	default:
		return def, nil
	}
}

// @Summary      Start temperature monitoring
// @Description  Polls command 3 every interval; samples go to a new sample file.
// @Tags         monitoring
// @Accept       json
// @Produce      json
// @Param        body  body      StartMonitoringRequest  false  "Interval"
// @Success      200   {object}  map[string]interface{}  "status, monitoring, sample_file"
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/monitoring/start [post]
func (h *Handler) startMonitoring(c *gin.Context) {
	var req monitoringRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}
	interval, err := req.duration(h.defaults.MonitoringInterval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval: " + err.Error()})
		return
	}

	err = h.services.Monitoring.Start(c.Request.Context(), interval)
	switch {
	case errors.Is(err, poller.ErrInvalidInterval), errors.Is(err, poller.ErrIntervalTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, poller.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errStartMonitoring, "monitoring_start_failed", err,
			"interval", interval)
		return
	}
	h.respondWithMonitoring(c, statusStarted)
}

// @Summary      Stop temperature monitoring
// @Tags         monitoring
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/monitoring/stop [post]
func (h *Handler) stopMonitoring(c *gin.Context) {
	h.services.Monitoring.Stop(c.Request.Context())
	h.respondWithMonitoring(c, statusStopped)
}

// @Summary      Get the monitoring session
// @Tags         monitoring
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/monitoring [get]
func (h *Handler) getMonitoring(c *gin.Context) {
	h.respondWithMonitoring(c, "")
}

func (h *Handler) respondWithMonitoring(c *gin.Context, status string) {
	resp := gin.H{
		"monitoring":  h.services.Monitoring.Session(),
		"sample_file": h.services.Monitoring.SampleFile(),
	}
	if status != "" {
		resp["status"] = status
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Start the event log file
// @Description  Opens a new timestamped log file; already running keeps the open file.
// @Tags         logging
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, logging"
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/logging/start [post]
func (h *Handler) startLogging(c *gin.Context) {
	if _, err := h.services.EventLog.StartFile(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStartLogging, "event_log_start_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusStarted, "logging": h.services.EventLog.FileStatus()})
}

// @Summary      Stop the event log file
// @Tags         logging
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/logging/stop [post]
func (h *Handler) stopLogging(c *gin.Context) {
	if err := h.services.EventLog.StopFile(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errStopLogging, "event_log_stop_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusStopped, "logging": h.services.EventLog.FileStatus()})
}
