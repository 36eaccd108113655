package server

import (
	"net/http"

	"arps/internal/agents/allocator"
	"arps/internal/agents/enforcer"
	"arps/internal/demo"
	"arps/internal/logging"
	"arps/internal/types"
	"arps/internal/usage"
)

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var in types.SolveInput
	if !readJSON(w, r, &in) {
		return
	}
	result, err := s.orch.Run(r.Context(), in)
	if err != nil {
		fail(w, "solve", err)
		return
	}
	logging.API("solve %s: recommended=%s", result.RunID, result.RecommendedActionID)
	writeJSON(w, http.StatusOK, result)
}

// contextWeaverRequest is the body of POST /api/agents/context-weaver.
type contextWeaverRequest struct {
	CRMSnapshot              string  `json:"crmSnapshot"`
	SupportConversation      string  `json:"supportConversation"`
	SlackOrEmailConversation string  `json:"slackOrEmailConversation"`
	ARR                      float64 `json:"arr"`
	RenewalDate              string  `json:"renewalDate"`
}

func (s *Server) handleContextWeaver(w http.ResponseWriter, r *http.Request) {
	var req contextWeaverRequest
	if !readJSON(w, r, &req) {
		return
	}
	causal, err := s.orch.Weaver().Assess(r.Context(), types.NewEvidenceBundle(
		req.CRMSnapshot, req.SupportConversation, req.SlackOrEmailConversation, req.ARR, req.RenewalDate))
	if err != nil {
		fail(w, "context-weaver", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"causal": causal})
}

// resourceAllocatorRequest is the body of POST /api/agents/resource-allocator.
type resourceAllocatorRequest struct {
	CausalSummary       string             `json:"causalSummary"`
	PrimaryDriver       string             `json:"primaryDriver"`
	ARR                 float64            `json:"arr"`
	RenewalDate         string             `json:"renewalDate"`
	PolicyDiscountCap   float64            `json:"policyDiscountCap"`
	TeamCapacity        types.TeamCapacity `json:"teamCapacity"`
	ConflictDetected    bool               `json:"conflictDetected,omitempty"`
	ConflictDescription string             `json:"conflictDescription,omitempty"`
}

func (s *Server) handleResourceAllocator(w http.ResponseWriter, r *http.Request) {
	var req resourceAllocatorRequest
	if !readJSON(w, r, &req) {
		return
	}
	result, err := s.orch.Allocator().Rank(r.Context(), allocator.Request{
		CausalSummary:       req.CausalSummary,
		PrimaryDriver:       req.PrimaryDriver,
		ARR:                 req.ARR,
		RenewalDate:         req.RenewalDate,
		DiscountCapPercent:  req.PolicyDiscountCap,
		Capacity:            req.TeamCapacity,
		ConflictDetected:    req.ConflictDetected,
		ConflictDescription: req.ConflictDescription,
	})
	if err != nil {
		fail(w, "resource-allocator", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// policyEnforcerRequest is the body of POST /api/agents/policy-enforcer.
type policyEnforcerRequest struct {
	RecommendedAction types.RankedAction `json:"recommendedAction"`
	PolicyRules       types.PolicyRules  `json:"policyRules"`
	TeamCapacity      types.TeamCapacity `json:"teamCapacity"`
	ARR               float64            `json:"arr"`
}

func (s *Server) handlePolicyEnforcer(w http.ResponseWriter, r *http.Request) {
	var req policyEnforcerRequest
	if !readJSON(w, r, &req) {
		return
	}
	policy, err := s.orch.Enforcer().Check(r.Context(), enforcer.Request{
		Action:   req.RecommendedAction,
		Rules:    req.PolicyRules,
		Capacity: req.TeamCapacity,
		ARR:      req.ARR,
	})
	if err != nil {
		fail(w, "policy-enforcer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"policyCheck": policy})
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, demo.Result(s.now()))
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	t := s.orch.Usage()
	if t == nil {
		t = usage.NewTracker()
	}
	writeJSON(w, http.StatusOK, t.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
