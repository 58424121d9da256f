// README: Voice handler; parses a booking transcript against the caller's monthly quota.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"keralaride/internal/http/middleware"
	"keralaride/internal/modules/aiusage"
)

// parseTimeout covers every retry the parser may make.
const parseTimeout = 45 * time.Second

type VoiceHandler struct {
	ai  *aiusage.Service
	loc *time.Location
	now func() time.Time
}

func NewVoiceHandler(aiSvc *aiusage.Service, loc *time.Location) *VoiceHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &VoiceHandler{ai: aiSvc, loc: loc, now: time.Now}
}

type voiceParseReq struct {
	Transcript string            `json:"transcript"`
	Context    map[string]string `json:"context"`
}

// Parse handles POST /api/voice/parse.
func (h *VoiceHandler) Parse(c *gin.Context) {
	var req voiceParseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req.Transcript = strings.TrimSpace(req.Transcript)
	if req.Transcript == "" {
		writeError(c, http.StatusBadRequest, "missing transcript")
		return
	}

	current := map[string]string{}
	for k, v := range req.Context {
		current[k] = v
	}
	current["current_time"] = h.now().In(h.loc).Format("2006-01-02 15:04 (Monday)")

	ctx, cancel := context.WithTimeout(c.Request.Context(), parseTimeout)
	defer cancel()

	cmd, err := h.ai.ParseCommand(ctx, middleware.CallerID(c), req.Transcript, current)
	if err != nil {
		writeVoiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cmd)
}

// Quota handles GET /api/voice/quota.
func (h *VoiceHandler) Quota(c *gin.Context) {
	left, err := h.ai.Remaining(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeVoiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"tokensRemaining": left})
}
