package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
)

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("httpapi: marshal response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func (s *Server) respondErr(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, map[string]string{"error": message})
}

func botIDFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

// listBots returns every bot config (spec §4.1 ListAll).
func (s *Server) listBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.configs.ListAll(r.Context())
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"bots": bots})
}

// getBot returns a single bot config.
func (s *Server) getBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := botIDFromPath(r)
	if !ok {
		s.respondErr(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	cfg, err := s.configs.Get(r.Context(), botID)
	if err != nil {
		s.respondErr(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, cfg)
}

// createBot validates and persists a new bot config (spec §4.1 Create).
func (s *Server) createBot(w http.ResponseWriter, r *http.Request) {
	var cfg entity.BotConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.respondErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	botID, err := s.configs.Create(r.Context(), &cfg)
	if err != nil {
		s.respondErr(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"botId": botID})
}

// updateBot applies a partial patch (spec §4.1 Update: status excluded).
func (s *Server) updateBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := botIDFromPath(r)
	if !ok {
		s.respondErr(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	var patch repository.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.respondErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.configs.Update(r.Context(), botID, patch); err != nil {
		s.respondErr(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// deleteBot stops any live runner then cascades the delete (spec §4.1, §6).
func (s *Server) deleteBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := botIDFromPath(r)
	if !ok {
		s.respondErr(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	_ = s.supervisor.StopBot(r.Context(), botID, true)
	if err := s.configs.Delete(r.Context(), botID); err != nil {
		s.respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) startBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := botIDFromPath(r)
	if !ok {
		s.respondErr(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	if err := s.supervisor.StartBot(r.Context(), botID, false); err != nil {
		s.respondErr(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) stopBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := botIDFromPath(r)
	if !ok {
		s.respondErr(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	if err := s.supervisor.StopBot(r.Context(), botID, true); err != nil {
		s.respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) restartBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := botIDFromPath(r)
	if !ok {
		s.respondErr(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	if err := s.supervisor.RestartBot(r.Context(), botID); err != nil {
		s.respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// forceSyncBot triggers an out-of-band OrderService.SyncWithExchange pass
// (spec §4.6) without waiting for the bot's pendingOrders monitor.
func (s *Server) forceSyncBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := botIDFromPath(r)
	if !ok {
		s.respondErr(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	cfg, err := s.configs.Get(r.Context(), botID)
	if err != nil {
		s.respondErr(w, http.StatusNotFound, err.Error())
		return
	}
	synced, err := s.orders.SyncWithExchange(r.Context(), cfg)
	if err != nil {
		s.respondErr(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"synced": synced})
}

// validateCredentials probes the exchange with the bot's stored key pair
// via a read-only account lookup (spec §4.2 GetAccount).
func (s *Server) validateCredentials(w http.ResponseWriter, r *http.Request) {
	botID, ok := botIDFromPath(r)
	if !ok {
		s.respondErr(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	cfg, err := s.configs.Get(r.Context(), botID)
	if err != nil {
		s.respondErr(w, http.StatusNotFound, err.Error())
		return
	}
	creds := gateway.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret}
	if _, err := s.exchange.GetAccount(r.Context(), creds); err != nil {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// duplicateCredentials flags bots sharing an identical API key, a
// misconfiguration that would make two bots fight over the same exchange
// rate limit and position book.
func (s *Server) duplicateCredentials(w http.ResponseWriter, r *http.Request) {
	bots, err := s.configs.ListAll(r.Context())
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	byKey := make(map[string][]int64)
	for _, b := range bots {
		if b.APIKey == "" {
			continue
		}
		byKey[b.APIKey] = append(byKey[b.APIKey], b.BotID)
	}
	duplicates := make([][]int64, 0)
	for _, ids := range byKey {
		if len(ids) > 1 {
			duplicates = append(duplicates, ids)
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"duplicates": duplicates})
}

// listStrategies returns the strategy names this process has registered
// (spec §3: strategyName is validated against this set).
func (s *Server) listStrategies(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"strategies": s.strategies.List()})
}

// listTokens passes the exchange's tradeable symbol list straight through
// (spec §4.2 GetMarkets). No filtering or ranking lives here.
func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.exchange.GetMarkets(r.Context())
	if err != nil {
		s.respondErr(w, http.StatusBadGateway, err.Error())
		return
	}
	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		symbols = append(symbols, t.Symbol)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tokens": symbols})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"runningBots": len(s.supervisor.RunningBotIDs()),
	})
}
