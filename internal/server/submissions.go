package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"projectmarket/internal/domain"
	"projectmarket/internal/engine"
	"projectmarket/internal/storage"
)

// multipartSlack covers form fields and part headers on top of the file cap.
const multipartSlack = 1 << 20

const multipartMemory = 8 << 20

func registerSubmissions(api huma.API, router chi.Router, basePath string, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/submissions/task/{taskId}",
		Summary:     "List a task's submissions newest first",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"taskId"`
	}) (*body[[]domain.Submission], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		subs, err := e.ListSubmissions(ctx, u, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(subs)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-submission",
		Method:      http.MethodPatch,
		Path:        "/submissions/{id}/review",
		Summary:     "Accept or reject the latest submission of a task",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body ReviewSubmissionRequest `json:"body"`
	}) (*body[domain.Submission], error) {
		u, err := currentUser(ctx)
		if err != nil {
			return nil, err
		}
		sub, err := e.ReviewSubmission(ctx, u, input.ID, engine.ReviewOptions{
			Decision:   domain.SubmissionStatus(input.Body.Decision),
			ReviewNote: input.Body.ReviewNote,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sub), nil
	})

	// the upload is streamed from the multipart body, outside huma's JSON binding
	router.Post(path.Join(basePath, "submissions"), submitHandler(e))
}

func submitHandler(e engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := currentUser(r.Context())
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		limit := e.Storage.Policy.MaxBytes
		if limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				respondStatusError(w, handleError(domain.Validationf("file exceeds the %s limit", humanize.IBytes(uint64(limit)))))
				return
			}
			respondStatusError(w, handleError(domain.Validationf("expected a multipart form with a file field")))
			return
		}
		defer r.MultipartForm.RemoveAll()

		taskID := strings.TrimSpace(r.FormValue("task_id"))
		if taskID == "" {
			respondStatusError(w, handleError(domain.Validationf("task_id is required")))
			return
		}
		opts := engine.SubmitOptions{TaskID: taskID, Notes: r.FormValue("notes")}
		file, header, err := r.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			respondStatusError(w, handleError(domain.Validationf("read file: %v", err)))
			return
		default:
			defer file.Close()
			opts.File = &storage.Upload{
				Name:         header.Filename,
				DeclaredType: header.Header.Get("Content-Type"),
				Body:         file,
			}
		}
		sub, err := e.SubmitWork(r.Context(), u, opts)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		respondJSON(w, http.StatusCreated, sub)
	}
}

// registerUploads serves stored artifacts to authenticated users.
func registerUploads(router chi.Router, e engine.Engine) {
	router.Get(storage.PathPrefix+"*", func(w http.ResponseWriter, r *http.Request) {
		if _, err := currentUser(r.Context()); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		full, ok := e.Storage.Resolve(r.URL.Path)
		if !ok {
			respondStatusError(w, handleError(domain.NotFoundf("file not found")))
			return
		}
		w.Header().Set("Content-Disposition", "attachment")
		http.ServeFile(w, r, full)
	})
}
