package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"minicorr/internal/controller"
	"minicorr/internal/protocol"
	"minicorr/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK           = "ok"
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
	statusStarted      = "started"
	statusStopped      = "stopped"

	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// respondWithResult writes a command result with the controller state. A
// command refused for lack of a session is a 409; any other outcome,
// including device error text, is a 200.
func (h *Handler) respondWithResult(c *gin.Context, res service.CommandResult) {
	code := http.StatusOK
	if res.Response == protocol.NotConnected {
		code = http.StatusConflict
	}
	c.JSON(code, gin.H{
		"result": res,
		"state":  h.services.Device.Snapshot(),
	})
}

// textValue accepts a JSON string or number and keeps its text verbatim.
type textValue string

func (v *textValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = textValue(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*v = textValue(n.String())
		return nil
	}
}

type connectRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ConnectRequest is an exported model for Swagger docs of the connect payload.
type ConnectRequest struct {
	// Device address; the configured host when empty
	Host string `json:"host,omitempty" example:"192.168.0.100"`
	// TCP port; the configured port when zero
	Port int `json:"port,omitempty" example:"5100"`
}

type fanModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type thresholdsRequest struct {
	Min textValue `json:"min"`
	Max textValue `json:"max"`
}

// ThresholdsRequest is an exported model for Swagger docs of the thresholds payload.
type ThresholdsRequest struct {
	// Fan-off temperature, sent as typed
	Min string `json:"min" example:"20"`
	// Fan-on temperature, sent as typed
	Max string `json:"max" example:"35"`
}

type networkRequest struct {
	IP      string `json:"ip" binding:"required"`
	Gateway string `json:"gateway" binding:"required"`
}

type commandRequest struct {
	Code int      `json:"code" binding:"required"`
	Args []string `json:"args"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Connect to the device
// @Description  Replaces any live session. Returns the device welcome text.
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      ConnectRequest  false  "Endpoint"
// @Success      200   {object}  map[string]interface{}  "status, welcome, state"
// @Failure      400   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/device/connect [post]
func (h *Handler) connect(c *gin.Context) {
	var req connectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}
	if req.Host == "" {
		req.Host = h.defaults.Host
	}
	if req.Port == 0 {
		req.Port = h.defaults.Port
	}

	welcome, err := h.services.Device.Connect(c.Request.Context(), req.Host, req.Port)
	switch {
	case errors.Is(err, service.ErrHostRequired), errors.Is(err, service.ErrInvalidPort):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logAndJSONError(c, http.StatusBadGateway, err.Error(), "device_connect_failed", err,
			"host", req.Host, "port", req.Port)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  statusConnected,
		"welcome": welcome,
		"state":   h.services.Device.Snapshot(),
	})
}

// @Summary      Disconnect from the device
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/device/disconnect [post]
func (h *Handler) disconnect(c *gin.Context) {
	h.services.Device.Disconnect(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status": statusDisconnected,
		"state":  h.services.Device.Snapshot(),
	})
}

// @Summary      Get controller state
// @Tags         device
// @Produce      json
// @Success      200  {object}  controller.Snapshot
// @Router       /api/v1/device/state [get]
func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Device.Snapshot())
}

// @Summary      Relay on (command 1)
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "result, state"
// @Failure      409  {object}  map[string]interface{}
// @Router       /api/v1/device/relay/on [post]
func (h *Handler) relayOn(c *gin.Context) {
	h.respondWithResult(c, h.services.Device.Relay(c.Request.Context(), true))
}

// @Summary      Relay off (command 2)
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "result, state"
// @Failure      409  {object}  map[string]interface{}
// @Router       /api/v1/device/relay/off [post]
func (h *Handler) relayOff(c *gin.Context) {
	h.respondWithResult(c, h.services.Device.Relay(c.Request.Context(), false))
}

// @Summary      Read temperature (command 3)
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "result, state"
// @Failure      409  {object}  map[string]interface{}
// @Router       /api/v1/device/temperature [get]
func (h *Handler) readTemperature(c *gin.Context) {
	h.respondWithResult(c, h.services.Device.ReadTemperature(c.Request.Context()))
}

// @Summary      Set fan mode (command 4 or 5)
// @Description  The mode is remembered locally even when the device cannot be reached.
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      map[string]string  true  "{\"mode\":\"auto|manual\"}"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]interface{}
// @Router       /api/v1/device/fan/mode [post]
func (h *Handler) setFanMode(c *gin.Context) {
	var req fanModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	mode, err := controller.ParseFanMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondWithResult(c, h.services.Device.SetFanMode(c.Request.Context(), mode))
}

// @Summary      Fan on (command 6)
// @Description  Only in manual fan mode with a live session.
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/device/fan/on [post]
func (h *Handler) fanOn(c *gin.Context) {
	h.fan(c, true)
}

// @Summary      Fan off (command 7)
// @Description  Only in manual fan mode with a live session.
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/device/fan/off [post]
func (h *Handler) fanOff(c *gin.Context) {
	h.fan(c, false)
}

func (h *Handler) fan(c *gin.Context, on bool) {
	res, err := h.services.Device.Fan(c.Request.Context(), on)
	if errors.Is(err, service.ErrManualFanUnavailable) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.respondWithResult(c, res)
}

// @Summary      Set fan thresholds (command 8)
// @Description  Both values are required and must be numbers; they are sent as typed.
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      ThresholdsRequest  true  "Thresholds"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]interface{}
// @Router       /api/v1/device/thresholds [post]
func (h *Handler) setThresholds(c *gin.Context) {
	var req thresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	res, err := h.services.Device.SetThresholds(c.Request.Context(), string(req.Min), string(req.Max))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondWithResult(c, res)
}

// @Summary      Read fan thresholds (command 9)
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /api/v1/device/thresholds [get]
func (h *Handler) readThresholds(c *gin.Context) {
	h.respondWithResult(c, h.services.Device.ReadThresholds(c.Request.Context()))
}

// @Summary      Set device network (command 10)
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      map[string]string  true  "{\"ip\":\"192.168.0.50\",\"gateway\":\"192.168.0.1\"}"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]interface{}
// @Router       /api/v1/device/network [post]
func (h *Handler) setNetwork(c *gin.Context) {
	var req networkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	res, err := h.services.Device.SetNetwork(c.Request.Context(), req.IP, req.Gateway)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondWithResult(c, res)
}

// @Summary      Send a raw command
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      map[string]interface{}  true  "{\"code\":3,\"args\":[]}"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]interface{}
// @Router       /api/v1/device/command [post]
func (h *Handler) rawCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := protocol.ValidateArgs(req.Args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.services.Device.Raw(c.Request.Context(), req.Code, req.Args)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondWithResult(c, res)
}
