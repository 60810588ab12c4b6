package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/draftforge/draftforge-backend/internal/data/repos"
	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/email"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
)

type EmailHandler struct {
	log       *logger.Logger
	svc       *email.Service
	prospects repos.ProspectRepo
	links     repos.ContentLinkRepo
	sendLog   repos.EmailSendLogRepo
}

func NewEmailHandler(log *logger.Logger, svc *email.Service, prospects repos.ProspectRepo, links repos.ContentLinkRepo, sendLog repos.EmailSendLogRepo) *EmailHandler {
	return &EmailHandler{
		log:       log.With("handler", "EmailHandler"),
		svc:       svc,
		prospects: prospects,
		links:     links,
		sendLog:   sendLog,
	}
}

type emailGenerateRequest struct {
	Email      string           `json:"email"`
	Prospect   *domain.Prospect `json:"prospect,omitempty"`
	CampaignID uuid.UUID        `json:"campaign_id,omitempty"`
}

// Generate composes the outbound email for one prospect and records the send.
// POST /api/email/generate
func (h *EmailHandler) Generate(c *gin.Context) {
	var req emailGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	ctx := c.Request.Context()

	prospect := req.Prospect
	if prospect != nil {
		if prospect.ID == uuid.Nil {
			prospect.ID = uuid.New()
		}
		if err := h.prospects.Upsert(ctx, prospect); err != nil {
			writeError(c, err)
			return
		}
		stored, err := h.prospects.GetByEmail(ctx, prospect.Email)
		if err != nil {
			writeError(c, err)
			return
		}
		prospect = stored
	} else {
		stored, err := h.prospects.GetByEmail(ctx, req.Email)
		if err != nil {
			writeError(c, err)
			return
		}
		prospect = stored
	}
	if prospect == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_prospect", "message": "no prospect for that email"})
		return
	}

	links, err := h.links.List(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.svc.Generate(ctx, email.GenerateInput{
		Prospect:    *prospect,
		RecentPages: repos.RecentPages(prospect),
		URLsSent:    repos.SentURLs(prospect),
		Links:       links,
	})
	if errors.Is(err, email.ErrNoTemplates) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no_templates", "message": "no email template configured"})
		return
	}
	if errors.Is(err, email.ErrNoLinks) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no_links", "message": "no content links configured"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.sendLog.Create(ctx, &domain.EmailSendLog{
		ID:         uuid.New(),
		ProspectID: prospect.ID,
		CampaignID: req.CampaignID,
		URL:        result.SelectedURL.URL,
		Subject:    result.Subject,
		Fallback:   result.UsedFallback,
		CreatedAt:  time.Now(),
	}); err != nil {
		h.log.Warn("Send log write failed", "prospect", prospect.Email, "error", err.Error())
	}
	if err := h.prospects.MarkURLSent(ctx, prospect.ID, result.SelectedURL.URL); err != nil {
		h.log.Warn("Sent-url update failed", "prospect", prospect.Email, "error", err.Error())
	}

	c.JSON(http.StatusOK, result)
}
