package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"snotify/pkg/channel"
	"snotify/pkg/logx"
	"snotify/pkg/notify"
)

// Response is the envelope for every JSON reply.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, Response{Error: &ErrorResponse{Code: code, Message: msg}})
}

// statusFor maps dispatcher errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	var agg *notify.AggregatedFailure
	switch {
	case errors.Is(err, notify.ErrNotFound):
		return http.StatusNotFound, "CHANNEL_NOT_FOUND"
	case errors.Is(err, notify.ErrNoChannelsAvailable):
		return http.StatusServiceUnavailable, "NO_CHANNELS"
	case errors.As(err, &agg):
		return http.StatusBadGateway, "DELIVERY_FAILED"
	case errors.Is(err, channel.ErrConfig):
		return http.StatusUnprocessableEntity, "INVALID_CONFIG"
	case errors.Is(err, channel.ErrSend):
		return http.StatusBadGateway, "DELIVERY_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (s *Server) writeSendError(w http.ResponseWriter, r *http.Request, err error, out *notify.Outcome) {
	status, code := statusFor(err)
	if status >= 500 {
		s.log.Warn("notify request failed",
			logx.String("path", r.URL.Path),
			logx.Int("status", status),
			logx.Err(err),
		)
	}
	resp := Response{Error: &ErrorResponse{Code: code, Message: err.Error()}}
	if out != nil {
		resp.Data = newOutcomeView(out)
	}
	writeJSON(w, status, resp)
}

// OutcomeView is the JSON form of a notify.Outcome.
type OutcomeView struct {
	ID        string        `json:"id"`
	Mode      string        `json:"mode"`
	Delivered string        `json:"delivered,omitempty"`
	Attempts  []AttemptView `json:"attempts"`
	Skipped   []string      `json:"skipped,omitempty"`
	TookMS    int64         `json:"took_ms"`
}

type AttemptView struct {
	Channel    string   `json:"channel"`
	Recipients []string `json:"recipients,omitempty"`
	OK         bool     `json:"ok"`
	Error      string   `json:"error,omitempty"`
	TookMS     int64    `json:"took_ms"`
}

func newOutcomeView(o *notify.Outcome) OutcomeView {
	v := OutcomeView{
		ID:        o.ID,
		Mode:      string(o.Mode),
		Delivered: o.Delivered,
		Attempts:  make([]AttemptView, 0, len(o.Attempts)),
		Skipped:   o.Skipped,
		TookMS:    o.Duration().Milliseconds(),
	}
	for _, a := range o.Attempts {
		av := AttemptView{Channel: a.Channel, Recipients: a.Recipients, OK: a.OK(), TookMS: a.Duration.Milliseconds()}
		if a.Err != nil {
			av.Error = a.Err.Error()
		}
		v.Attempts = append(v.Attempts, av)
	}
	return v
}
