package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/homeschool-api/internal/dto"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/internal/service"
	"github.com/noah-isme/homeschool-api/pkg/calendar"
	appErrors "github.com/noah-isme/homeschool-api/pkg/errors"
)

type fakeCompletionSrv struct {
	last dto.ToggleCompletionRequest
	err  error
}

func (f *fakeCompletionSrv) Toggle(_ context.Context, _ models.Viewer, req dto.ToggleCompletionRequest) (*dto.ToggleCompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ToggleCompletionResponse{AssignmentID: req.AssignmentID, StudentID: req.StudentID, InstanceDate: req.InstanceDate, Completed: *req.Completed}, nil
}

func TestCompletionHandlerToggle(t *testing.T) {
	srv := &fakeCompletionSrv{}
	handler := NewCompletionHandler(srv)
	body := map[string]interface{}{"assignmentId": "reading", "studentId": "kid-1", "instanceDate": "2024-01-15", "completed": true}
	c, rec := newTestContext(http.MethodPost, "/completions/toggle", body, parentClaims)

	handler.Toggle(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reading", srv.last.AssignmentID)
	require.NotNil(t, srv.last.InstanceDate)
	assert.Equal(t, calendar.MustParse("2024-01-15"), *srv.last.InstanceDate)
	assert.True(t, *srv.last.Completed)
	assert.Contains(t, string(decode(t, rec).Data), `"completed":true`)
}

func TestCompletionHandlerToggleErrors(t *testing.T) {
	srv := &fakeCompletionSrv{err: appErrors.Clone(appErrors.ErrValidation, "instanceDate is not an occurrence")}
	handler := NewCompletionHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/completions/toggle", map[string]interface{}{"assignmentId": "a", "completed": false}, parentClaims)
	handler.Toggle(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/completions/toggle", map[string]interface{}{"assignmentId": "a", "instanceDate": "Monday"}, parentClaims)
	handler.Toggle(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeExportSrv struct {
	format string
	err    error
}

func (f *fakeExportSrv) History(_ context.Context, _ models.Viewer, _ string, format string, _ *calendar.Date) (*service.ExportResult, error) {
	f.format = format
	if f.err != nil {
		return nil, f.err
	}
	return &service.ExportResult{Filename: "history_kid-1_2024-01-15.csv", ContentType: "text/csv", Data: []byte("Title\n")}, nil
}

func TestExportHandlerStreamsAttachment(t *testing.T) {
	srv := &fakeExportSrv{}
	handler := NewExportHandler(srv)
	c, rec := newTestContext(http.MethodGet, "/dashboard/history/export?studentId=kid-1", nil, parentClaims)

	handler.History(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", srv.format)
	assert.Equal(t, `attachment; filename="history_kid-1_2024-01-15.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Title\n", rec.Body.String())
}

func TestExportHandlerDisabled(t *testing.T) {
	handler := NewExportHandler(&fakeExportSrv{err: appErrors.ErrFeatureDisabled})
	c, rec := newTestContext(http.MethodGet, "/dashboard/history/export?format=pdf", nil, parentClaims)

	handler.History(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
