// internal/controller/outreach_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-service/internal/middleware"
	"github.com/unclebandit/outreach-service/internal/model"
	"github.com/unclebandit/outreach-service/internal/response"
	"github.com/unclebandit/outreach-service/internal/service"
)

type OutreachController struct {
	OutreachService *service.OutreachService
	Logger          *zap.Logger
}

// Routes mounts the outreach endpoints on r.
func (c *OutreachController) Routes(r chi.Router) {
	r.Post("/dispatches", c.SendBatch)
	r.Post("/dispatches/async", c.EnqueueBatch)
	r.Get("/outbound", c.ListOutbound)
	r.Post("/inbox/poll", c.PollInbox)
	r.Get("/inbox/count", c.CountInbox)
	r.Get("/replies", c.ListReplies)
	r.Post("/replies/manual", c.MarkReplied)
}

type batchBody struct {
	ContactIDs      []string `json:"contact_ids"`
	Status          string   `json:"status"`
	Limit           int      `json:"limit"`
	SubjectTemplate string   `json:"subject_template"`
	BodyTemplate    string   `json:"body_template"`
	HTMLTemplate    string   `json:"html_template"`
}

func (b batchBody) request(r *http.Request) model.BatchRequest {
	return model.BatchRequest{
		Filter:          model.ContactFilter{IDs: b.ContactIDs, Status: b.Status, Limit: b.Limit},
		SubjectTemplate: b.SubjectTemplate,
		BodyTemplate:    b.BodyTemplate,
		HTMLTemplate:    b.HTMLTemplate,
		RequestedBy:     middleware.Operator(r.Context()),
	}
}

func (c *OutreachController) SendBatch(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, "invalid body")
		return
	}

	result, err := c.OutreachService.SendBatch(r.Context(), body.request(r))
	if err != nil {
		c.fail(w, "send batch", err)
		return
	}
	response.OK(w, result)
}

func (c *OutreachController) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, "invalid body")
		return
	}

	jobID, err := c.OutreachService.EnqueueBatch(r.Context(), body.request(r))
	if err != nil {
		c.fail(w, "enqueue batch", err)
		return
	}
	response.Accepted(w, map[string]any{"job_id": jobID, "status": "queued"})
}

func (c *OutreachController) ListOutbound(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := c.OutreachService.ListOutbound(r.Context(), r.URL.Query().Get("recipient_id"), limit)
	if err != nil {
		c.fail(w, "list outbound", err)
		return
	}
	response.OK(w, records)
}

func (c *OutreachController) PollInbox(w http.ResponseWriter, r *http.Request) {
	var opts service.PollOptions
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			response.BadRequest(w, "invalid body")
			return
		}
	}

	result, err := c.OutreachService.PollInbox(r.Context(), opts)
	if err != nil {
		c.fail(w, "poll inbox", err)
		return
	}
	response.OK(w, result)
}

func (c *OutreachController) CountInbox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since *time.Time
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(w, "since must be RFC3339")
			return
		}
		since = &t
	}
	includeRead, _ := strconv.ParseBool(q.Get("include_read"))

	count, err := c.OutreachService.CountInbox(r.Context(), q.Get("subject"), since, includeRead)
	if err != nil {
		c.fail(w, "count inbox", err)
		return
	}
	response.OK(w, map[string]any{"subject": q.Get("subject"), "count": count})
}

func (c *OutreachController) ListReplies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	replies, err := c.OutreachService.ListReplies(r.Context(), model.ReplyFilter{
		RecipientID: q.Get("recipient_id"),
		OutboundID:  q.Get("outbound_id"),
		Limit:       limit,
	})
	if err != nil {
		c.fail(w, "list replies", err)
		return
	}
	response.OK(w, replies)
}

func (c *OutreachController) MarkReplied(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RecipientID string `json:"recipient_id"`
		Note        string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, "invalid body")
		return
	}

	reply, err := c.OutreachService.MarkReplied(r.Context(), body.RecipientID, body.Note)
	if err != nil {
		c.fail(w, "mark replied", err)
		return
	}
	response.Created(w, reply)
}

func (c *OutreachController) fail(w http.ResponseWriter, op string, err error) {
	if status := response.StatusFor(err); status >= http.StatusInternalServerError && c.Logger != nil {
		c.Logger.Error(op, zap.Error(err))
	}
	response.Error(w, err)
}
