package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/satindergrewal/astrosonic/internal/journal"
	"github.com/satindergrewal/astrosonic/internal/logger"
	"github.com/satindergrewal/astrosonic/internal/mapper"
	"github.com/satindergrewal/astrosonic/internal/render"
	"github.com/satindergrewal/astrosonic/internal/stream"
)

const (
	HeaderRenderID = "X-Render-Id"
	HeaderCache    = "X-Cache"

	defaultRecent = 50
	maxRecent     = 500
)

// OfferRequest carries a client SDP offer and the render to stream into
// its data channel.
type OfferRequest struct {
	Offer   webrtc.SessionDescription `json:"offer"`
	Request render.Request            `json:"request"`
}

type OfferResponse struct {
	Answer *webrtc.SessionDescription `json:"answer"`
	Render render.Summary             `json:"render"`
}

type AudioHandlerConfig struct {
	WSWriteTimeout time.Duration
	WSReadTimeout  time.Duration
	AllowOrigins   []string
}

// AudioHandler serves every render transport.
type AudioHandler struct {
	log      *logger.Logger
	svc      *render.Service
	peers    *stream.Peers
	upgrader websocket.Upgrader
	wsWrite  time.Duration
	wsRead   time.Duration
}

func NewAudioHandler(log *logger.Logger, svc *render.Service, peers *stream.Peers, cfg AudioHandlerConfig) *AudioHandler {
	return &AudioHandler{
		log:   log,
		svc:   svc,
		peers: peers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 8192,
			CheckOrigin:     originChecker(cfg.AllowOrigins),
		},
		wsWrite: cfg.WSWriteTimeout,
		wsRead:  cfg.WSReadTimeout,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (h *AudioHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/audio/stream", h.Stream)
	g.POST("/audio/render", h.Render)
	g.GET("/audio/ws", h.WebSocket)
	g.POST("/audio/offer", h.Offer)
	g.POST("/params", h.Params)
	g.GET("/genres", h.Genres)
	g.GET("/renders", h.Renders)
}

func (h *AudioHandler) prepare(c echo.Context) (*render.Job, error) {
	var req render.Request
	if err := c.Bind(&req); err != nil {
		return nil, err
	}
	return h.svc.Prepare(req)
}

// Stream sends a chunked WAV with a streaming header. Errors after the
// headers went out end the response early; the bytes already sent stay
// playable.
func (h *AudioHandler) Stream(c echo.Context) error {
	job, err := h.prepare(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	release, err := h.svc.Admit()
	if err != nil {
		return AppErrorResponse(c, err)
	}
	defer release()

	p := job.Gen.Params()
	hdr := stream.AudioHeaders(job.Seed(), p.Key, p.Tempo)
	hdr.Set(HeaderRenderID, job.ID)

	sink := stream.NewHTTPSink(c.Response())
	sink.WriteHeaders(hdr)
	_, _ = h.svc.Stream(c.Request().Context(), job, sink, render.TransportHTTP)
	return nil
}

// Render returns the finished WAV with exact sizes.
func (h *AudioHandler) Render(c echo.Context) error {
	job, err := h.prepare(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	wav, cached, err := h.svc.Render(c.Request().Context(), job)
	if err != nil {
		h.log.Error("render failed", logger.String("render_id", job.ID), logger.Error(err))
		return AppErrorResponse(c, err)
	}

	p := job.Gen.Params()
	hdr := c.Response().Header()
	for k, vs := range stream.AudioHeaders(job.Seed(), p.Key, p.Tempo) {
		hdr[k] = vs
	}
	hdr.Set(HeaderRenderID, job.ID)
	hdr.Set(HeaderCache, "MISS")
	if cached {
		hdr.Set(HeaderCache, "HIT")
	}
	hdr.Set(echo.HeaderContentLength, strconv.Itoa(len(wav)))
	hdr.Set(echo.HeaderContentDisposition, `attachment; filename="astrosonic-`+job.ID+`.wav"`)
	return c.Blob(http.StatusOK, "audio/wav", wav)
}

// WebSocket reads one request message, replies with a JSON summary and
// then streams the WAV as binary messages.
func (h *AudioHandler) WebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return nil
	}
	defer conn.Close()

	if h.wsRead > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.wsRead))
	}
	var req render.Request
	if err := conn.ReadJSON(&req); err != nil {
		h.wsFail(conn, websocket.CloseUnsupportedData, BadRequestError("invalid request message").WithError(err))
		return nil
	}
	_ = conn.SetReadDeadline(time.Time{})

	job, err := h.svc.Prepare(req)
	if err != nil {
		h.wsFail(conn, websocket.ClosePolicyViolation, err)
		return nil
	}
	release, err := h.svc.Admit()
	if err != nil {
		h.wsFail(conn, websocket.CloseTryAgainLater, err)
		return nil
	}
	defer release()

	if err := conn.WriteJSON(APIResponse{Status: http.StatusOK, Message: "OK", Data: h.svc.Describe(job)}); err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	sink := stream.NewWSSink(conn, h.wsWrite)
	if _, err := h.svc.Stream(ctx, job, sink, render.TransportWS); err == nil {
		_ = sink.Close("done")
	}
	return nil
}

// wsFail sends an error envelope as a text message, then closes.
func (h *AudioHandler) wsFail(conn *websocket.Conn, code int, err error) {
	status := http.StatusBadRequest
	var data interface{}
	if verrs, ok := validationErrors(err); ok {
		data = verrs
	} else {
		appErr := toAppError(err)
		status = appErr.Status
		data = []*AppError{appErr}
	}
	if h.wsWrite > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.wsWrite))
	}
	_ = conn.WriteJSON(APIResponse{Status: status, Message: http.StatusText(status), Data: data})
	msg := websocket.FormatCloseMessage(code, http.StatusText(status))
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Offer answers a WebRTC offer. The render starts when the client's data
// channel opens; only the first channel receives audio.
func (h *AudioHandler) Offer(c echo.Context) error {
	var req OfferRequest
	if err := c.Bind(&req); err != nil {
		return AppErrorResponse(c, err)
	}
	if req.Offer.SDP == "" {
		return BadRequestResponse(c, []ValidationError{{
			Code:    "ERR_REQUIRED",
			Field:   "offer.sdp",
			Message: "offer.sdp is required",
		}})
	}

	job, err := h.svc.Prepare(req.Request)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var once sync.Once
	serve := func(ctx context.Context, sink *stream.DataChannelSink) {
		once.Do(func() {
			release, err := h.svc.Admit()
			if err != nil {
				h.log.Warn("webrtc stream rejected", logger.String("render_id", job.ID), logger.Error(err))
				return
			}
			defer release()
			_, _ = h.svc.Stream(ctx, job, sink, render.TransportWebRTC)
		})
	}

	answer, err := h.peers.Answer(c.Request().Context(), req.Offer, serve)
	if err != nil {
		return AppErrorResponse(c, BadRequestError("could not negotiate session").WithError(err))
	}
	return SuccessResponse(c, OfferResponse{Answer: answer, Render: h.svc.Describe(job)})
}

// Params maps a request to musical parameters without synthesizing.
func (h *AudioHandler) Params(c echo.Context) error {
	job, err := h.prepare(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, h.svc.Describe(job))
}

func (h *AudioHandler) Genres(c echo.Context) error {
	names := mapper.GenreNames()
	out := make([]*mapper.Genre, 0, len(names))
	for _, n := range names {
		out = append(out, mapper.Genres[n])
	}
	return ListResponse(c, out, int64(len(out)))
}

func (h *AudioHandler) Renders(c echo.Context) error {
	limit := defaultRecent
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return BadRequestResponse(c, []ValidationError{{
				Code:    "ERR_GTE",
				Field:   "limit",
				Message: "limit must be a positive integer",
			}})
		}
		limit = min(n, maxRecent)
	}
	entries, err := h.svc.Recent(c.Request().Context(), limit)
	if err != nil {
		h.log.Error("journal read failed", logger.Error(err))
		return AppErrorResponse(c, err)
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return ListResponse(c, entries, int64(len(entries)))
}
