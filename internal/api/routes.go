package api

import (
	"fmt"
	"log/slog"
	"net/http"
)

type handler struct {
	assistant Assistant
	logger    *slog.Logger
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.assistant == nil {
		writeEnvelope(r.Context(), w, http.StatusNotImplemented, "query pipeline is not configured")
		return false
	}
	return true
}

func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req questionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	answer, err := h.assistant.Ask(r.Context(), req.TableName, req.Question)
	if err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (h *handler) handleShow(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req questionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	result, err := h.assistant.Show(r.Context(), req.TableName, req.Question)
	if err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) handlePlot(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req questionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	result, err := h.assistant.Plot(r.Context(), req.TableName, req.Question)
	if err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req provisionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	def, err := h.assistant.Provision(r.Context(), req.Document())
	if err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	writeEnvelope(r.Context(), w, http.StatusOK, fmt.Sprintf("%s Table Created Successfully", def.Name))
}

func (h *handler) handleDrop(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req tableRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	if err := h.assistant.Drop(r.Context(), req.TableName); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	writeEnvelope(r.Context(), w, http.StatusOK, fmt.Sprintf("%s table dropped successfully", req.TableName))
}

func (h *handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req tableRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	def, err := h.assistant.Restore(r.Context(), req.TableName)
	if err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	writeEnvelope(r.Context(), w, http.StatusOK, fmt.Sprintf("%s Table Restored Successfully", def.Name))
}
