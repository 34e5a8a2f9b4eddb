package httpadapter

import (
	"net/http"
	"strconv"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

func (rt *Router) createRule(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var input ports.RuleInput
	if err := decodeJSON(w, r, &input); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rule, err := rt.svc.Rules.Create(r.Context(), tenantID, input)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule.Snapshot())
}

func (rt *Router) listRules(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	rules, err := rt.svc.Rules.List(r.Context(), tenantID, activeOnly)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	out := make([]domain.RuleSnapshot, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rule.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (rt *Router) updateRule(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	ruleID, err := pathID(r, "id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var input ports.RuleInput
	if err := decodeJSON(w, r, &input); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rule, err := rt.svc.Rules.Update(r.Context(), tenantID, ruleID, input)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule.Snapshot())
}

func (rt *Router) setRuleActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		ruleID, err := pathID(r, "id")
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		rule, err := rt.svc.Rules.SetActive(r.Context(), tenantID, ruleID, active)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rule.Snapshot())
	}
}

func (rt *Router) dryRunRules(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var input ports.DryRunInput
	if err := decodeJSON(w, r, &input); err != nil {
		rt.writeError(w, r, err)
		return
	}
	results, err := rt.svc.Rules.DryRun(r.Context(), tenantID, input)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) createQueue(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var input ports.QueueInput
	if err := decodeJSON(w, r, &input); err != nil {
		rt.writeError(w, r, err)
		return
	}
	queue, err := rt.svc.Queues.Create(r.Context(), tenantID, input)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, queue.Snapshot())
}

func (rt *Router) listQueues(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	queues, err := rt.svc.Queues.List(r.Context(), tenantID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	out := make([]domain.QueueSnapshot, 0, len(queues))
	for _, q := range queues {
		out = append(out, q.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (rt *Router) setQueueActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		queueID, err := pathID(r, "id")
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		queue, err := rt.svc.Queues.SetActive(r.Context(), tenantID, queueID, active)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, queue.Snapshot())
	}
}

// verifyWebhook lets receivers check a signature against their secret. It
// needs no tenant.
func (rt *Router) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload   string `json:"payload"`
		Signature string `json:"signature"`
		Secret    string `json:"secret"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if req.Secret == "" || req.Signature == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signature and secret are required"})
		return
	}
	valid := rt.svc.Verifier.VerifySignature(req.Payload, req.Signature, req.Secret)
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (rt *Router) tenantUsage(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	view, err := rt.svc.Tenants.Usage(r.Context(), tenantID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
