package slack

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/model"
)

// ErrBusy is returned by a Starter when no run slot is free.
var ErrBusy = errors.New("slack: all run slots busy")

// maxBodyBytes bounds slash command payloads.
const maxBodyBytes = 64 << 10

// Starter launches a qualification run in the background and returns its id.
type Starter interface {
	Start(req model.SearchRequest) (string, error)
}

// Handler serves the slash command endpoint. Slack expects an answer within
// three seconds, so runs are started asynchronously and acknowledged at once.
type Handler struct {
	verifier *Verifier
	starter  Starter
	defaults Defaults
}

// NewHandler creates a slash command handler.
func NewHandler(v *Verifier, s Starter, d Defaults) *Handler {
	return &Handler{verifier: v, starter: s, defaults: d}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := h.verifier.Verify(
		r.Header.Get("X-Slack-Request-Timestamp"),
		r.Header.Get("X-Slack-Signature"),
		body,
	); err != nil {
		zap.L().Warn("slack: rejected request", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	text := form.Get("text")
	if IsHelp(text) {
		reply(w, HelpText)
		return
	}

	req, err := ParseCommand(text, h.defaults)
	if err != nil {
		reply(w, FormatError(err))
		return
	}
	req.Origin = model.Origin{
		SlackUserID:    form.Get("user_id"),
		SlackChannelID: form.Get("channel_id"),
		TriggerID:      form.Get("trigger_id"),
		ResponseURL:    form.Get("response_url"),
	}

	runID, err := h.starter.Start(req)
	if errors.Is(err, ErrBusy) {
		reply(w, "Lead Magnet is busy with other searches right now. Please try again in a few minutes.")
		return
	}
	if err != nil {
		zap.L().Error("slack: start run failed", zap.Error(err))
		reply(w, FormatError(err))
		return
	}

	zap.L().Info("slack: run started",
		zap.String("run_id", runID),
		zap.String("user_id", req.Origin.SlackUserID),
		zap.String("text", text))
	reply(w, ackText(req, runID))
}

func ackText(req model.SearchRequest, runID string) string {
	var filters []string
	if len(req.Keywords) > 0 {
		filters = append(filters, "keywords: "+strings.Join(req.Keywords, ", "))
	}
	if len(req.Industries) > 0 {
		filters = append(filters, "industry: "+strings.Join(req.Industries, ", "))
	}
	if len(req.Seniority) > 0 {
		filters = append(filters, "seniority: "+strings.Join(req.Seniority, ", "))
	}
	return fmt.Sprintf("Lead search started (%s). Looking for %d qualified leads, evaluating at most %d companies. "+
		"Results will be posted here when the run finishes. Run `%s`.",
		strings.Join(filters, "; "), req.TargetCount, req.MaxProcessed, runID)
}

func reply(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Message{Text: text, ResponseType: "ephemeral"})
}
