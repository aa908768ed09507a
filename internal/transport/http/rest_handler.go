package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logger"
)

// Identity headers are set by the upstream authentication layer.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// RESTHandler exposes the attempt operations over HTTP.
type RESTHandler struct {
	service *app.AttemptService
	log     *logger.Logger
	now     func() time.Time
}

func NewRESTHandler(service *app.AttemptService, log *logger.Logger) *RESTHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RESTHandler{service: service, log: log, now: time.Now}
}

// Register mounts the attempt routes on r.
func (h *RESTHandler) Register(r *mux.Router) {
	r.HandleFunc("/quizzes/{quizId}/attempts", h.start).Methods(http.MethodPost)
	r.HandleFunc("/attempts/{attemptId}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/attempts/{attemptId}/answers", h.saveProgress).Methods(http.MethodPut)
	r.HandleFunc("/attempts/{attemptId}/submit", h.submit).Methods(http.MethodPost)
	r.HandleFunc("/students/{studentId}/attempts", h.list).Methods(http.MethodGet)
	r.HandleFunc("/students/{studentId}/quizzes/{quizId}/attempts", h.reset).Methods(http.MethodDelete)
}

type requester struct {
	id   string
	role domain.Role
}

func identify(w http.ResponseWriter, r *http.Request) (requester, bool) {
	id := r.Header.Get(headerUserID)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "missing " + headerUserID})
		return requester{}, false
	}
	role := domain.Role(r.Header.Get(headerUserRole))
	if role == "" {
		role = domain.RoleStudent
	}
	return requester{id: id, role: role}, true
}

func (h *RESTHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody(err))
}

func (h *RESTHandler) view(r *http.Request, a domain.Attempt) attemptView {
	quiz, err := h.service.Quiz(r.Context(), a.QuizID)
	if err != nil {
		// Timing is decoration; the attempt itself is still valid.
		return attemptView{Attempt: a, State: a.State()}
	}
	return newAttemptView(a, quiz, h.now())
}

func (h *RESTHandler) start(w http.ResponseWriter, r *http.Request) {
	who, ok := identify(w, r)
	if !ok {
		return
	}
	attempt, err := h.service.Start(r.Context(), who.id, mux.Vars(r)["quizId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, attempt))
}

func (h *RESTHandler) get(w http.ResponseWriter, r *http.Request) {
	who, ok := identify(w, r)
	if !ok {
		return
	}
	attempt, err := h.service.Get(r.Context(), mux.Vars(r)["attemptId"], who.id, who.role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, attempt))
}

func (h *RESTHandler) saveProgress(w http.ResponseWriter, r *http.Request) {
	who, ok := identify(w, r)
	if !ok {
		return
	}
	answers, err := decodeAnswers(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	attempt, err := h.service.SaveProgress(r.Context(), mux.Vars(r)["attemptId"], who.id, answers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, attempt))
}

func (h *RESTHandler) submit(w http.ResponseWriter, r *http.Request) {
	who, ok := identify(w, r)
	if !ok {
		return
	}
	answers, err := decodeAnswers(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.Submit(r.Context(), mux.Vars(r)["attemptId"], who.id, answers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RESTHandler) list(w http.ResponseWriter, r *http.Request) {
	who, ok := identify(w, r)
	if !ok {
		return
	}
	studentID := mux.Vars(r)["studentId"]
	if !who.role.Elevated() && who.id != studentID {
		h.fail(w, r, domain.ErrForbidden)
		return
	}
	attempts, err := h.service.List(r.Context(), studentID, r.URL.Query().Get("quizId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	domain.SortLatestFirst(attempts)
	writeJSON(w, http.StatusOK, attempts)
}

func (h *RESTHandler) reset(w http.ResponseWriter, r *http.Request) {
	who, ok := identify(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	removed, err := h.service.ResetAttempts(r.Context(), who.role, vars["studentId"], vars["quizId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
