package handlers

import (
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"leadflow/internal/attribution"
	"leadflow/internal/config"
	"leadflow/internal/conversion"
	dbpkg "leadflow/internal/db"
	"leadflow/internal/lead"
)

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	e164Re  = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
)

type leadRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	PhoneE164        string `json:"phone_e164"`
	Company          string `json:"company,omitempty"`
	Website          string `json:"website,omitempty"`
	MonthlyBudgetUSD int    `json:"monthly_budget_usd"`
	RunningAds       bool   `json:"running_ads"`
	Timeline         string `json:"timeline,omitempty"`

	// SessionID correlates this submission with tracked attribution.
	SessionID string `json:"session_id"`

	// Honeypot is a hidden form field; humans leave it empty.
	Honeypot string `json:"company_url,omitempty"`
}

// CreateLead validates and persists a lead, captures attribution and
// enqueues click-ID-gated conversion events. Attribution and conversion
// failures are logged, never surfaced — losing tracking is tolerated, losing
// the lead is not.
func CreateLead(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req leadRequest
		if !parseBody(ctx, &req) {
			return
		}

		if req.Honeypot != "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid submission")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		req.PhoneE164 = strings.TrimSpace(req.PhoneE164)
		if req.Name == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "name is required")
			return
		}
		if !emailRe.MatchString(req.Email) {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid email address")
			return
		}
		if !e164Re.MatchString(req.PhoneE164) {
			errResponse(ctx, fasthttp.StatusBadRequest, "phone must be E.164 format")
			return
		}

		score := lead.Score(lead.ScoreInput{
			MonthlyBudgetUSD: req.MonthlyBudgetUSD,
			RunningAds:       req.RunningAds,
			Timeline:         req.Timeline,
			HasWebsite:       req.Website != "",
			HasCompany:       req.Company != "",
		})
		grade := lead.Grade(score)

		l := dbpkg.Lead{
			PublicID:           uuid.NewString(),
			Name:               req.Name,
			Email:              req.Email,
			PhoneE164:          req.PhoneE164,
			Company:            req.Company,
			Website:            req.Website,
			MonthlyBudgetUSD:   req.MonthlyBudgetUSD,
			RunningAds:         req.RunningAds,
			Timeline:           req.Timeline,
			Score:              score,
			Grade:              grade,
			RecommendedPackage: lead.RecommendedPackage(req.MonthlyBudgetUSD),
			RetrievalToken:     uuid.NewString(),
		}
		if err := db.Create(&l).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to save lead")
			return
		}
		countLead(grade)

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		attr := attribution.FromRequestCtx(ctx, sessionID)
		attr.LeadID = &l.ID
		if err := attribution.Save(db, &attr); err != nil {
			log.Printf("lead attribution save failed (lead=%d): %v", l.ID, err)
		} else {
			if err := conversion.EnqueueForAttribution(db, &attr, dbpkg.EventLeadCreated, &l.ID, nil, 0, ""); err != nil {
				log.Printf("lead conversion enqueue failed (lead=%d): %v", l.ID, err)
			}
			if lead.Qualified(score) {
				if err := conversion.EnqueueForAttribution(db, &attr, dbpkg.EventLeadQualified, &l.ID, nil, 0, ""); err != nil {
					log.Printf("lead qualified enqueue failed (lead=%d): %v", l.ID, err)
				}
			}
		}

		jsonResponse(ctx, map[string]any{
			"ok":                  true,
			"lead_id":             l.PublicID,
			"lead_score":          score,
			"lead_grade":          grade,
			"recommended_package": l.RecommendedPackage,
			"retrieval_token":     l.RetrievalToken,
		})
	}
}
