package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-settings/internal/jsonbridge"
	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// errSettingNotFound is returned when a {key} path segment names no setting.
var errSettingNotFound = errors.New("setting not found")

// maxHistoryLimit caps the history route's limit parameter.
const maxHistoryLimit = 500

// SettingView is the JSON form of one setting.
//
// Value falls back to the default, like Registry.Value; IsSet tells the two
// apart. Unset values and defaults are null.
type SettingView struct {
	ID      uint16  `json:"id"`
	Key     string  `json:"key"`
	Type    string  `json:"type"`
	MaxSize int     `json:"max_size"`
	Value   *string `json:"value"`
	Default *string `json:"default"`
	IsSet   bool    `json:"is_set"`
	Changed bool    `json:"changed"`
}

// ValueRequest is the body of the value and default routes.
// Value uses the same text form as the operator shell.
type ValueRequest struct {
	Value *string `json:"value"`
}

// HistoryEntry is one change log row.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	SettingID uint16    `json:"setting_id"`
	Key       string    `json:"key"`
	Source    string    `json:"source"`
	ChangedAt time.Time `json:"changed_at"`
}

// handleListSettings returns every setting, or only changed ones with
// ?changed=true, as a flat JSON object.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	changedOnly := r.URL.Query().Get("changed") == "true"

	var data []byte
	err := s.queue.Do(r.Context(), func(context.Context) error {
		var err error
		if changedOnly {
			data, err = jsonbridge.ChangedJSON(s.registry)
		} else {
			data, err = jsonbridge.AllJSON(s.registry)
		}
		return err
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, data)
}

// handlePatchSettings applies a flat JSON object of key → value.
//
// Unknown keys and mismatched values are skipped and reported with 422
// after every other entry was applied. ?mark_changed=true flags every
// applied setting as changed, even when its value was already equal.
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	markChanged := r.URL.Query().Get("mark_changed") == "true"

	var data []byte
	err = s.queue.Do(r.Context(), func(ctx context.Context) error {
		setErr := s.attribute(settings.ChangeSourceJSON, func() error {
			return jsonbridge.SetFromJSON(ctx, s.registry, body, markChanged)
		})
		if setErr != nil {
			return setErr
		}
		var encErr error
		data, encErr = jsonbridge.AllJSON(s.registry)
		return encErr
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, data)
}

// handleGetSetting returns one setting.
func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	var view SettingView
	err := s.queue.Do(r.Context(), func(context.Context) error {
		st, err := s.resolve(chi.URLParam(r, "key"))
		if err != nil {
			return err
		}
		view = s.view(st)
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSetValue sets a value from its text form.
func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	text, ok := decodeValueRequest(w, r)
	if !ok {
		return
	}

	var view SettingView
	err := s.queue.Do(r.Context(), func(ctx context.Context) error {
		st, err := s.resolve(chi.URLParam(r, "key"))
		if err != nil {
			return err
		}
		data, err := settings.ParseValue(st.Type(), text)
		if err != nil {
			return err
		}
		err = s.attribute(settings.ChangeSourceAPI, func() error {
			return s.registry.SetValue(ctx, st.ID(), data)
		})
		if err != nil {
			return err
		}
		view = s.view(st)
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSetDefault provisions a default from its text form.
// A different default over an existing one answers 409 under the reject policy.
func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	text, ok := decodeValueRequest(w, r)
	if !ok {
		return
	}

	var view SettingView
	err := s.queue.Do(r.Context(), func(ctx context.Context) error {
		st, err := s.resolve(chi.URLParam(r, "key"))
		if err != nil {
			return err
		}
		data, err := settings.ParseValue(st.Type(), text)
		if err != nil {
			return err
		}
		if err := s.registry.SetDefault(ctx, st.ID(), data); err != nil {
			return err
		}
		view = s.view(st)
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleRestoreSetting restores one setting to its default.
func (s *Server) handleRestoreSetting(w http.ResponseWriter, r *http.Request) {
	var view SettingView
	err := s.queue.Do(r.Context(), func(ctx context.Context) error {
		st, err := s.resolve(chi.URLParam(r, "key"))
		if err != nil {
			return err
		}
		err = s.attribute(settings.ChangeSourceRestore, func() error {
			return s.registry.RestoreDefault(ctx, st.ID())
		})
		if err != nil {
			return err
		}
		view = s.view(st)
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleRestoreAll restores every setting that has a default.
func (s *Server) handleRestoreAll(w http.ResponseWriter, r *http.Request) {
	var data []byte
	err := s.queue.Do(r.Context(), func(ctx context.Context) error {
		err := s.attribute(settings.ChangeSourceRestore, func() error {
			return s.registry.RestoreDefaults(ctx)
		})
		if err != nil {
			return err
		}
		data, err = jsonbridge.AllJSON(s.registry)
		return err
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, data)
}

// handleClearChanged clears every change flag.
func (s *Server) handleClearChanged(w http.ResponseWriter, r *http.Request) {
	err := s.queue.Do(r.Context(), func(context.Context) error {
		s.registry.ClearAllChanged()
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSettingHistory returns recent change log entries, newest first.
func (s *Server) handleSettingHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "change history not available")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	var key string
	err := s.queue.Do(r.Context(), func(context.Context) error {
		st, err := s.resolve(chi.URLParam(r, "key"))
		if err != nil {
			return err
		}
		key = st.Key()
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}

	records, err := s.history.Recent(r.Context(), key, limit)
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}
	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, HistoryEntry(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":     key,
		"changes": entries,
	})
}

// resolve finds a setting by key, then by numeric id. Run it on the queue.
func (s *Server) resolve(ref string) (*settings.Setting, error) {
	if st, ok := s.registry.LookupKey(ref); ok {
		return st, nil
	}
	if id, err := strconv.ParseUint(ref, 0, 16); err == nil {
		if st, ok := s.registry.Lookup(uint16(id)); ok {
			return st, nil
		}
	}
	return nil, errSettingNotFound
}

// view renders st. Run it on the queue.
func (s *Server) view(st *settings.Setting) SettingView {
	v := SettingView{
		ID:      st.ID(),
		Key:     st.Key(),
		Type:    st.Type().String(),
		MaxSize: st.MaxSize(),
		Value:   textValue(s.registry, st),
		IsSet:   st.IsSet(),
		Changed: st.ChangedRecently(),
	}
	if def, ok := st.Default(); ok {
		text := settings.FormatValue(st.Type(), def)
		v.Default = &text
	}
	return v
}

// textValue formats the effective value of st, or nil when it has neither
// value nor default.
func textValue(reg *settings.Registry, st *settings.Setting) *string {
	data, ok := reg.Value(st.ID())
	if !ok {
		return nil
	}
	text := settings.FormatValue(st.Type(), data)
	return &text
}

// decodeValueRequest reads a ValueRequest. On failure it has already
// written the response.
func decodeValueRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req ValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return "", false
	}
	return *req.Value, true
}

// writeSettingsError maps registry and bridge errors to HTTP responses.
func (s *Server) writeSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errSettingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jsonbridge.ErrInvalidJSON):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, settings.ErrInvalidValue),
		errors.Is(err, settings.ErrValueTooLarge),
		errors.Is(err, jsonbridge.ErrUnknownKey),
		errors.Is(err, jsonbridge.ErrTypeMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, settings.ErrAlreadySet),
		errors.Is(err, settings.ErrNoDefault):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, settings.ErrQueueClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "settings registry unavailable")
	default:
		s.logger.Error("settings request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
