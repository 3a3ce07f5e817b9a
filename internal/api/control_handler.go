package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/headset-server/internal/bluetooth"
	"github.com/taoyao-code/headset-server/internal/gateway"
	"github.com/taoyao-code/headset-server/internal/transport"
)

// ConnectRequest 连接请求。address 为空时自动选择第一台已配对耳机
type ConnectRequest struct {
	Address string `json:"address"`
}

// AncRequest 降噪设置请求
type AncRequest struct {
	Mode  string `json:"mode"`
	Level *int   `json:"level"`
	Focus *bool  `json:"focus"`
}

// VolumeRequest 音量设置请求
type VolumeRequest struct {
	Level *int `json:"level"`
}

// ToggleRequest 开关类设置请求
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// SpeakToChatRequest 免摘对话设置请求
type SpeakToChatRequest struct {
	Enabled     bool `json:"enabled"`
	Sensitivity *int `json:"sensitivity"`
	Timeout     *int `json:"timeout"`
}

// PlaybackRequest 播放控制请求
type PlaybackRequest struct {
	Action string `json:"action"`
}

// 缺省值与原生App保持一致
const (
	defaultAncMode      = "off"
	defaultAmbientLevel = 10
	defaultVolume       = 15
	defaultS2CSens      = 1 // HIGH
	defaultS2CTimeout   = 1 // MID ~15s
	defaultPlayAction   = "play"
)

// ControlHandler 耳机控制API处理器
type ControlHandler struct {
	gw      *gateway.Gateway
	timeout time.Duration
	logger  *zap.Logger
}

// NewControlHandler 创建耳机控制处理器
func NewControlHandler(gw *gateway.Gateway, timeout time.Duration, logger *zap.Logger) *ControlHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ControlHandler{
		gw:      gw,
		timeout: timeout,
		logger:  logger,
	}
}

// cmdCtx 为单次设备命令限定请求级超时
func (h *ControlHandler) cmdCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// bindJSON 解析请求体。空请求体不视为错误，字段保持缺省值
func bindJSON(c *gin.Context, out interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeError 统一错误映射：协议细节不出边界，只回传类别与描述
func (h *ControlHandler) writeError(c *gin.Context, err error) {
	h.logger.Debug("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))

	switch {
	case errors.Is(err, gateway.ErrInvalidParam):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, bluetooth.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, transport.ErrAlreadyConnected), errors.Is(err, transport.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gateway.ErrCircuitOpen), errors.Is(err, transport.ErrQueueFull),
		errors.Is(err, bluetooth.ErrUnsupported), errors.Is(err, bluetooth.ErrNoAdapter):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, transport.ErrTransportFault), errors.Is(err, transport.ErrHandshakeFailed),
		errors.Is(err, transport.ErrSequenceMismatch):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ListDevices 查询已配对耳机
// @Summary 查询已配对耳机
// @Description 通过BlueZ枚举已配对的索尼WH-1000XM系列耳机
// @Tags 连接管理
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/devices [get]
func (h *ControlHandler) ListDevices(c *gin.Context) {
	ctx, cancel := h.cmdCtx(c)
	defer cancel()

	devices, err := h.gw.Devices(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if devices == nil {
		devices = []bluetooth.DeviceInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// Connect 连接耳机
// @Summary 连接耳机
// @Description 建立RFCOMM连接并完成协议握手；address为空时自动选择第一台已配对耳机
// @Tags 连接管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body ConnectRequest false "目标设备地址"
// @Success 200 {object} map[string]interface{} "连接后的状态快照"
// @Failure 404 {object} map[string]string "未发现已配对耳机"
// @Failure 409 {object} map[string]string "已有连接"
// @Router /api/connect [post]
func (h *ControlHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// 连接整体时长由网关自身限定，这里不叠加命令级超时
	st, err := h.gw.Connect(c.Request.Context(), req.Address)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Disconnect 断开耳机
// @Summary 断开耳机
// @Description 关闭当前连接；未连接时为空操作，始终成功
// @Tags 连接管理
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]bool "成功"
// @Router /api/disconnect [post]
func (h *ControlHandler) Disconnect(c *gin.Context) {
	ctx, cancel := h.cmdCtx(c)
	defer cancel()

	if err := h.gw.Disconnect(ctx); err != nil {
		h.logger.Warn("disconnect finished with error", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Status 查询状态快照
// @Summary 查询状态快照
// @Description 返回缓存的设备状态，不触达传输层
// @Tags 设备控制
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/status [get]
func (h *ControlHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.gw.Status())
}

// Stats 查询运行统计
// @Summary 查询运行统计
// @Description 返回会话状态、连接熔断器与命令限速统计
// @Tags 设备控制
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/stats [get]
func (h *ControlHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.gw.RuntimeStats())
}

// SetAnc 设置降噪模式
// @Summary 设置降噪模式
// @Description mode取off/nc/ambient；level为环境声通透等级0-20；focus为人声聚焦
// @Tags 设备控制
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body AncRequest true "降噪参数"
// @Success 200 {object} map[string]bool "成功"
// @Failure 400 {object} map[string]string "参数越界"
// @Failure 409 {object} map[string]string "未连接"
// @Router /api/anc [post]
func (h *ControlHandler) SetAnc(c *gin.Context) {
	var req AncRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Mode == "" {
		req.Mode = defaultAncMode
	}
	level := defaultAmbientLevel
	if req.Level != nil {
		level = *req.Level
	}
	focus := false
	if req.Focus != nil {
		focus = *req.Focus
	}

	ctx, cancel := h.cmdCtx(c)
	defer cancel()

	if err := h.gw.SetAnc(ctx, req.Mode, level, focus); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SetVolume 设置音量
// @Summary 设置音量
// @Description level范围0-30
// @Tags 设备控制
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body VolumeRequest true "音量参数"
// @Success 200 {object} map[string]bool "成功"
// @Failure 400 {object} map[string]string "参数越界"
// @Router /api/volume [post]
func (h *ControlHandler) SetVolume(c *gin.Context) {
	var req VolumeRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	level := defaultVolume
	if req.Level != nil {
		level = *req.Level
	}

	ctx, cancel := h.cmdCtx(c)
	defer cancel()

	if err := h.gw.SetVolume(ctx, level); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SetDsee 开关DSEE音频增强
// @Summary 开关DSEE音频增强
// @Tags 设备控制
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body ToggleRequest true "开关参数"
// @Success 200 {object} map[string]bool "成功"
// @Router /api/dsee [post]
func (h *ControlHandler) SetDsee(c *gin.Context) {
	var req ToggleRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := h.cmdCtx(c)
	defer cancel()

	if err := h.gw.SetDsee(ctx, req.Enabled); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SetSpeakToChat 开关免摘对话
// @Summary 开关免摘对话
// @Description sensitivity与timeout可选，缺省为高灵敏度/约15秒
// @Tags 设备控制
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body SpeakToChatRequest true "开关参数"
// @Success 200 {object} map[string]bool "成功"
// @Router /api/speak_to_chat [post]
func (h *ControlHandler) SetSpeakToChat(c *gin.Context) {
	var req SpeakToChatRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sens := defaultS2CSens
	if req.Sensitivity != nil {
		sens = *req.Sensitivity
	}
	timeout := defaultS2CTimeout
	if req.Timeout != nil {
		timeout = *req.Timeout
	}

	ctx, cancel := h.cmdCtx(c)
	defer cancel()

	if err := h.gw.SetSpeakToChat(ctx, req.Enabled, sens, timeout); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Playback 播放控制
// @Summary 播放控制
// @Description action取play/pause/next/prev
// @Tags 设备控制
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body PlaybackRequest true "播放动作"
// @Success 200 {object} map[string]bool "成功"
// @Failure 400 {object} map[string]string "未知动作"
// @Router /api/playback [post]
func (h *ControlHandler) Playback(c *gin.Context) {
	var req PlaybackRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Action == "" {
		req.Action = defaultPlayAction
	}

	ctx, cancel := h.cmdCtx(c)
	defer cancel()

	if err := h.gw.Playback(ctx, req.Action); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
