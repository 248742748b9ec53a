package caseapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/linnemanlabs/medtriage/internal/cases"
)

// maxImageBytes caps the uploaded image size. Larger uploads get 413.
const maxImageBytes = 10 << 20 // 10 MiB

func (a *API) handleSubmitCase(w http.ResponseWriter, r *http.Request) {
	imageData, clinicalContext, err := readSubmission(r)
	if err != nil {
		a.logger.Info(r.Context(), "rejected case submission", "reason", err.Error())
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	sr, err := a.svc.Submit(r.Context(), imageData, clinicalContext)
	if err != nil {
		if errors.Is(err, cases.ErrBadImage) {
			http.Error(w, `{"error":"unsupported or corrupt image"}`, http.StatusBadRequest)
			return
		}
		a.logger.Error(r.Context(), err, "failed to submit case")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	resp := map[string]any{"id": sr.ID}
	if sr.Skipped {
		resp["skipped"] = true
		resp["reason"] = sr.Reason
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

// readSubmission pulls the image bytes and clinical context out of the
// request. Multipart form uploads use the "image" file part and the
// "clinical_context" field; raw image bodies pass context via the
// X-Clinical-Context header.
func readSubmission(r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxImageBytes)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			return nil, "", errors.New("invalid multipart form")
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, "", errors.New("missing image part")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", errors.New("unreadable image part")
		}
		if len(data) == 0 {
			return nil, "", errors.New("empty image")
		}
		return data, r.FormValue("clinical_context"), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", errors.New("unreadable body")
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty image")
	}
	return data, r.Header.Get("X-Clinical-Context"), nil
}
