package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"chatrelay/internal/chat"
	"chatrelay/internal/messagestore/models"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const (
	maxBodyBytes  = 1 << 20
	healthTimeout = 3 * time.Second
)

type ChatSender interface {
	Send(ctx context.Context, userID, message string) (string, error)
}

type HistoryReader interface {
	GetHistory(ctx context.Context, userID string) ([]models.HistoryItem, error)
	Ping(ctx context.Context) error
}

type PasswordVerifier interface {
	Verify(password string) bool
}

type Handler struct {
	chatService    ChatSender
	historyService HistoryReader
	gate           PasswordVerifier
	validate       *validator.Validate
}

func NewHandler(chatService ChatSender, historyService HistoryReader, gate PasswordVerifier) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		chatService:    chatService,
		historyService: historyService,
		gate:           gate,
		validate:       validate,
	}
}

type ChatRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	// Message must be present; an empty string is a valid message.
	Message *string `json:"message" validate:"required"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type HistoryResponse struct {
	History []models.HistoryItem `json:"history"`
}

type VerifyRequest struct {
	Password string `json:"password" validate:"required"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ChatRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	reply, err := h.chatService.Send(r.Context(), req.UserID, *req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrQuotaExceeded) {
			writeError(w, http.StatusForbidden, chat.ErrQuotaExceeded.Error())
			return
		}
		logrus.WithField("user_id", req.UserID).Errorf("chat request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	history, err := h.historyService.GetHistory(r.Context(), userID)
	if err != nil {
		logrus.WithField("user_id", userID).Errorf("history request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{History: history})
}

func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req VerifyRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if !h.gate.Verify(req.Password) {
		logrus.WithField("remote_addr", r.RemoteAddr).Warn("password verification failed")
		writeJSON(w, http.StatusUnauthorized, StatusResponse{Status: "fail"})
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.historyService.Ping(ctx); err != nil {
		logrus.Errorf("health check: database unreachable: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
