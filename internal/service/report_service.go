package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/classgrid/timetable-engine/internal/models"
	"github.com/classgrid/timetable-engine/pkg/config"
	appErrors "github.com/classgrid/timetable-engine/pkg/errors"
	"github.com/classgrid/timetable-engine/pkg/export"
	"github.com/classgrid/timetable-engine/pkg/jobs"
	"github.com/classgrid/timetable-engine/pkg/storage"
)

// ReportExport is a rendered file ready for signed download.
type ReportExport struct {
	Token     string
	Filename  string
	ExpiresAt time.Time
}

// ReportService renders a schedule version's report payload as CSV or PDF
// and hands back a signed, time-limited download token, per the report
// payload supplement.
type ReportService struct {
	timetables *TimetableService
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	files      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	cfg        config.ReportsConfig

	cleanup *jobs.Queue
}

// NewReportService creates a ReportService. files/signer are nil-safe when
// Reports.Enabled is false in configuration; callers must check cfg.Enabled
// before registering the export routes.
func NewReportService(timetables *TimetableService, files *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger, cfg config.ReportsConfig) *ReportService {
	s := &ReportService{
		timetables: timetables,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		files:      files,
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
	}
	s.cleanup = jobs.NewQueue("report-export-cleanup", s.runCleanup, jobs.QueueConfig{
		Workers:    maxInt(cfg.WorkerConcurrency, 1),
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// StartCleanup launches the background worker that periodically deletes
// report exports older than SignedURLTTL, so expired downloads don't
// accumulate on disk. A no-op when report export is disabled.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.files == nil {
		return
	}
	s.cleanup.Start(ctx)
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.cleanup.Enqueue(jobs.Job{ID: fmt.Sprintf("cleanup-%d", time.Now().UnixNano()), Type: "cleanup_expired_exports"}); err != nil {
					s.logger.Sugar().Warnw("failed to enqueue cleanup job", "error", err)
				}
			}
		}
	}()
}

// StopCleanup stops the background worker, if running.
func (s *ReportService) StopCleanup() {
	if s.files == nil {
		return
	}
	s.cleanup.Stop()
}

func (s *ReportService) runCleanup(_ context.Context, _ jobs.Job) error {
	deleted, err := s.files.CleanupOlderThan(s.cfg.SignedURLTTL)
	if err != nil {
		return fmt.Errorf("cleanup expired exports: %w", err)
	}
	if len(deleted) > 0 {
		s.logger.Sugar().Infow("expired report exports removed", "count", len(deleted))
	}
	return nil
}

func teacherWorkloadDataset(payload *models.ReportPayload) export.Dataset {
	return mapDataset("teacher", "lecture_count", payload.TeacherWorkload)
}

func roomUsageDataset(payload *models.ReportPayload) export.Dataset {
	return mapDataset("room", "usage_count", payload.RoomUsage)
}

func subjectDistributionDataset(payload *models.ReportPayload) export.Dataset {
	return mapDataset("subject", "entry_count", payload.SubjectDistribution)
}

func freeSlotsDataset(payload *models.ReportPayload) export.Dataset {
	return mapDataset("class_day", "free_slots", payload.FreeSlotsByClassDay)
}

func mapDataset(keyHeader, valueHeader string, data map[string]int) export.Dataset {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, map[string]string{keyHeader: k, valueHeader: fmt.Sprintf("%d", data[k])})
	}
	return export.Dataset{Headers: []string{keyHeader, valueHeader}, Rows: rows}
}

// ExportCSV renders the report payload's four breakdowns as one CSV and
// returns a signed download token.
func (s *ReportService) ExportCSV(ctx context.Context, versionID string) (*ReportExport, error) {
	payload, err := s.timetables.Report(ctx, versionID)
	if err != nil {
		return nil, err
	}

	sections := []export.Section{
		{Title: "teacher_workload", Data: teacherWorkloadDataset(payload)},
		{Title: "room_usage", Data: roomUsageDataset(payload)},
		{Title: "subject_distribution", Data: subjectDistributionDataset(payload)},
		{Title: "free_slots_by_class_day", Data: freeSlotsDataset(payload)},
	}
	body, err := s.csv.RenderSections(sections)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
	}

	return s.persist(versionID, "csv", body)
}

// ExportPDF renders all four report breakdowns (teacher workload, room
// usage, subject distribution, free slots) as one multi-section PDF and
// returns a signed download token.
func (s *ReportService) ExportPDF(ctx context.Context, versionID string) (*ReportExport, error) {
	payload, err := s.timetables.Report(ctx, versionID)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("schedule report %s (score %.2f)", versionID, payload.Score)
	sections := []export.Section{
		{Title: "Teacher Workload", Data: teacherWorkloadDataset(payload)},
		{Title: "Room Usage", Data: roomUsageDataset(payload)},
		{Title: "Subject Distribution", Data: subjectDistributionDataset(payload)},
		{Title: "Free Slots by Class/Day", Data: freeSlotsDataset(payload)},
	}
	body, err := s.pdf.RenderSections(sections, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
	}

	return s.persist(versionID, "pdf", body)
}

func (s *ReportService) persist(versionID, ext string, body []byte) (*ReportExport, error) {
	if s.files == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "report export is disabled")
	}
	filename := fmt.Sprintf("%s.%s", versionID, ext)
	rel, err := s.files.Save(filename, body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store report export")
	}
	token, expiresAt, err := s.signer.Generate(versionID, rel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign report download")
	}
	s.logger.Sugar().Infow("report export persisted", "version_id", versionID, "filename", rel, "expires_at", expiresAt)
	return &ReportExport{Token: token, Filename: rel, ExpiresAt: expiresAt}, nil
}

// Download validates a signed token and opens the stored export file.
func (s *ReportService) Download(token string) (string, error) {
	if s.files == nil || s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrPreconditionFailed, "report export is disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	return s.files.Path(relPath), nil
}
