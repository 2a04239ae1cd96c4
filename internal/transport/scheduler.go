package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/weftsched/weft/internal/kernel"
	"github.com/weftsched/weft/internal/model"
	"github.com/weftsched/weft/internal/strategy"
)

type createSchedulerRequest struct {
	StrategyType  string  `json:"strategy_type"`
	StrategyBound *uint   `json:"strategy_bound"`
	RandomSeed    *uint64 `json:"random_seed"`
}

type createSchedulerResponse struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	ErrorCode string `json:"error_code"`
}

// handleCreateScheduler provisions a fresh kernel instance plus the run
// record that tracks its exploration history. Any field the request body
// omits falls back to the server's default strategy configuration.
func (s *Server) handleCreateScheduler(w http.ResponseWriter, r *http.Request) {
	var req createSchedulerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	cfg := s.defaultCfg
	if req.StrategyType != "" {
		t, err := strategy.ParseType(req.StrategyType)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "unknown strategy_type")
			return
		}
		cfg.Type = t
	}
	if req.StrategyBound != nil {
		cfg.ExplorationStrategyBound = *req.StrategyBound
	}
	if req.RandomSeed != nil {
		cfg.RandomSeed = *req.RandomSeed
	}

	run := &model.Run{
		ID:            model.NewID(),
		StrategyType:  cfg.Type.String(),
		StrategyBound: cfg.ExplorationStrategyBound,
		RandomSeed:    cfg.RandomSeed,
		Status:        model.RunStatusRunning,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateRun(r.Context(), run); err != nil {
		s.logger.Error("create run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	id, _, err := s.registry.create(cfg, run.ID)
	if err != nil {
		s.logger.Error("create scheduler instance", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create scheduler instance")
		return
	}

	s.writeJSON(w, http.StatusCreated, createSchedulerResponse{
		ID:        id,
		RunID:     run.ID,
		ErrorCode: kernel.Success.String(),
	})
}

// handleAttach begins a new iteration and resets the per-iteration token
// sequence this instance accumulates for its eventual iteration record.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	inst.mu.Lock()
	code := inst.kernel.Attach()
	if code == kernel.Success {
		inst.steps = 0
		inst.tokens = []uint64{uint64(inst.kernel.ScheduledOperationID())}
	}
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

// handleDetach ends the current iteration, then persists an iteration
// record summarizing it: the code the kernel's most recent entry-point call
// recorded (LastError), the step count, and the token sequence collected
// along the way.
func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	inst.mu.Lock()
	prevOutcome := inst.kernel.LastError()
	steps := inst.steps
	tokens := inst.tokens
	code := inst.kernel.Detach()
	inst.mu.Unlock()

	if code == kernel.Success {
		s.recordIteration(r, inst, prevOutcome, steps, tokens)
	}

	s.writeErrorCode(w, code)
}

func (s *Server) recordIteration(r *http.Request, inst *instance, outcomeCode kernel.ErrorCode, steps int, tokens []uint64) {
	outcome := model.IterationOutcomeError
	switch outcomeCode {
	case kernel.Success:
		outcome = model.IterationOutcomeSuccess
	case kernel.DeadlockDetected:
		outcome = model.IterationOutcomeDeadlock
	}
	schedulerIterationsTotal.WithLabelValues(outcome).Inc()

	if err := s.store.IncrementRunIteration(r.Context(), inst.runID); err != nil {
		s.logger.Error("increment run iteration", "error", err)
	}

	rec := &model.IterationRecord{
		RunID:          inst.runID,
		Outcome:        outcome,
		ErrorCode:      outcomeCode.String(),
		ScheduledSteps: steps,
		ScheduleLength: len(tokens),
		TokenSequence:  tokens,
		CreatedAt:      time.Now().UTC(),
	}
	run, err := s.store.GetRun(r.Context(), inst.runID)
	if err == nil {
		rec.Iteration = run.IterationCount
	}
	if err := s.store.InsertIterationRecord(r.Context(), rec); err != nil {
		s.logger.Error("insert iteration record", "error", err)
	}
}

type operationIDRequest struct {
	ID uint64 `json:"id"`
}

func (s *Server) handleCreateOperation(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	var req operationIDRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	inst.mu.Lock()
	code := inst.kernel.CreateOperation(kernel.OperationID(req.ID))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

func (s *Server) handleStartOperation(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}
	op, ok := uintURLParam(r, "op")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid operation id")
		return
	}

	inst.mu.Lock()
	code := inst.kernel.StartOperation(kernel.OperationID(op))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

func (s *Server) handleCompleteOperation(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}
	op, ok := uintURLParam(r, "op")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid operation id")
		return
	}

	inst.mu.Lock()
	code := inst.kernel.CompleteOperation(kernel.OperationID(op))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

func (s *Server) handleJoinOperation(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}
	op, ok := uintURLParam(r, "op")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid operation id")
		return
	}

	inst.mu.Lock()
	code := inst.kernel.JoinOperation(kernel.OperationID(op))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

type joinRequest struct {
	IDs  []uint64 `json:"ids"`
	Mode string   `json:"mode"`
}

func (s *Server) handleJoinOperations(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	var req joinRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ids := make([]kernel.OperationID, len(req.IDs))
	for i, v := range req.IDs {
		ids[i] = kernel.OperationID(v)
	}

	inst.mu.Lock()
	code := inst.kernel.JoinOperations(ids, parseJoinMode(req.Mode))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	var req operationIDRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	inst.mu.Lock()
	code := inst.kernel.CreateResource(kernel.ResourceID(req.ID))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}
	res, ok := uintURLParam(r, "res")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	inst.mu.Lock()
	code := inst.kernel.DeleteResource(kernel.ResourceID(res))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

func (s *Server) handleWaitResource(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}
	res, ok := uintURLParam(r, "res")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	inst.mu.Lock()
	code := inst.kernel.WaitResource(kernel.ResourceID(res))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

type waitResourcesRequest struct {
	IDs  []uint64 `json:"ids"`
	Mode string   `json:"mode"`
}

func (s *Server) handleWaitResources(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	var req waitResourcesRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ids := make([]kernel.ResourceID, len(req.IDs))
	for i, v := range req.IDs {
		ids[i] = kernel.ResourceID(v)
	}

	inst.mu.Lock()
	code := inst.kernel.WaitResources(ids, parseJoinMode(req.Mode))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

func (s *Server) handleSignalResource(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}
	res, ok := uintURLParam(r, "res")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	inst.mu.Lock()
	code := inst.kernel.SignalResource(kernel.ResourceID(res))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

func (s *Server) handleSignalResourceTo(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}
	res, ok := uintURLParam(r, "res")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}
	op, ok := uintURLParam(r, "op")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid operation id")
		return
	}

	inst.mu.Lock()
	code := inst.kernel.SignalResourceTo(kernel.ResourceID(res), kernel.OperationID(op))
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

// handleScheduleNext advances the token. On every Success it counts a step
// and appends the id of the operation holding the token when the call
// returns; a call that leaves the token where it was appends that id too.
func (s *Server) handleScheduleNext(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	inst.mu.Lock()
	code := inst.kernel.ScheduleNext()
	if code == kernel.Success {
		inst.steps++
		inst.tokens = append(inst.tokens, uint64(inst.kernel.ScheduledOperationID()))
	}
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}

type booleanResponse struct {
	Value bool `json:"value"`
}

func (s *Server) handleNextBoolean(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	inst.mu.Lock()
	v := inst.kernel.NextBoolean()
	inst.mu.Unlock()

	s.writeJSON(w, http.StatusOK, booleanResponse{Value: v})
}

type integerResponse struct {
	Value int `json:"value"`
}

func (s *Server) handleNextInteger(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}
	max := parseIntQuery(r, "max", 0)

	inst.mu.Lock()
	v := inst.kernel.NextInteger(max)
	inst.mu.Unlock()

	s.writeJSON(w, http.StatusOK, integerResponse{Value: v})
}

type seedResponse struct {
	Seed uint64 `json:"seed"`
}

func (s *Server) handleRandomSeed(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	inst.mu.Lock()
	seed := inst.kernel.RandomSeed()
	inst.mu.Unlock()

	s.writeJSON(w, http.StatusOK, seedResponse{Seed: seed})
}

type operationIDResponse struct {
	OperationID uint64 `json:"operation_id"`
}

func (s *Server) handleScheduledOperation(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	inst.mu.Lock()
	id := inst.kernel.ScheduledOperationID()
	inst.mu.Unlock()

	s.writeJSON(w, http.StatusOK, operationIDResponse{OperationID: uint64(id)})
}

func (s *Server) handleLastError(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instanceFromRequest(w, r)
	if !ok {
		return
	}

	inst.mu.Lock()
	code := inst.kernel.LastError()
	inst.mu.Unlock()

	s.writeErrorCode(w, code)
}
